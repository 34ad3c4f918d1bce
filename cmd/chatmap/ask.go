package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"chatmap/internal/ai"
	"chatmap/internal/config"
	"chatmap/internal/infra"
	"chatmap/internal/modules/chat"
	"chatmap/internal/modules/geo"
	"chatmap/internal/modules/mapstate"
	"chatmap/internal/modules/turn"
)

type askOptions struct {
	profile     string
	provider    string
	baseURL     string
	model       string
	apiKey      string
	temperature float64
	structured  bool
	strict      bool
	asJSON      bool
	verbose     bool
}

func newAskCmd() *cobra.Command {
	var opts askOptions
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question, stream the answer and print the places found in it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			endpoint, err := opts.endpoint(cfg, cmd.Flags().Changed("temperature"))
			if err != nil {
				return err
			}
			if opts.strict {
				cfg.Extract.Strict = true
			}
			return runAsk(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), strings.Join(args, " "), endpoint, cfg, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.profile, "profile", "", "named profile from CHATMAP_PROFILES_FILE")
	f.StringVar(&opts.provider, "provider", "", "provider id (see `chatmap providers`)")
	f.StringVar(&opts.baseURL, "base-url", "", "endpoint base URL")
	f.StringVar(&opts.model, "model", "", "model name")
	f.StringVar(&opts.apiKey, "api-key", "", "API key (defaults to CHATMAP_API_KEY)")
	f.Float64Var(&opts.temperature, "temperature", ai.DefaultTemperature, "sampling temperature in [0,1]")
	f.BoolVar(&opts.structured, "structured", false, "request json_schema output from OpenAI-compatible endpoints")
	f.BoolVar(&opts.strict, "strict", false, "reject the whole extraction when any coordinate is invalid")
	f.BoolVar(&opts.asJSON, "json", false, "print the final result as JSON instead of streaming text")
	f.BoolVar(&opts.verbose, "verbose", false, "log pipeline events to stderr")
	return cmd
}

// endpoint layers flags over the profile or provider they select, falling back to the configured default.
func (o askOptions) endpoint(cfg config.Config, temperatureSet bool) (ai.EndpointConfig, error) {
	var ep ai.EndpointConfig
	switch {
	case o.profile != "":
		p, ok := cfg.Profile(o.profile)
		if !ok {
			return ai.EndpointConfig{}, fmt.Errorf("%w %q", config.ErrUnknownProfile, o.profile)
		}
		ep = p
	case o.provider != "":
		ep = ai.EndpointConfig{Provider: ai.ProviderID(o.provider), APIKey: cfg.Model.APIKey, Temperature: ai.DefaultTemperature}
	default:
		ep = cfg.Model
	}

	if o.baseURL != "" {
		ep.BaseURL = o.baseURL
	}
	if o.model != "" {
		ep.Model = o.model
	}
	if o.apiKey != "" {
		ep.APIKey = o.apiKey
	}
	if temperatureSet {
		ep.Temperature = o.temperature
	}
	if o.structured {
		ep.StructuredOutput = true
	}
	ep = ep.WithDefaults().Normalized()
	return ep, ep.Validate()
}

type askResult struct {
	Answer       string             `json:"answer"`
	TaskType     geo.TaskType       `json:"task_type"`
	Markers      []geo.Location     `json:"markers"`
	EncodedRoute string             `json:"encoded_route,omitempty"`
	Viewport     *mapstate.Viewport `json:"viewport,omitempty"`
	Validation   string             `json:"validation,omitempty"`
}

func runAsk(ctx context.Context, out, errOut io.Writer, question string, endpoint ai.EndpointConfig, cfg config.Config, opts askOptions) error {
	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	logger := infra.NewLogger(level, "text")
	logger.SetOutput(errOut)

	provider := ai.NewRouter(ai.NewOpenAIClient(nil, logger), ai.NewGeminiClient())
	o := turn.NewOrchestrator("cli", turn.Deps{
		Generator: chat.NewGenerator(provider, logger),
		Extractor: geo.NewExtractor(provider, geo.Options{Strict: cfg.Extract.Strict, Timeout: cfg.Extract.Timeout}, logger),
		Logger:    logger,
	})
	defer o.Close()

	events, unsubscribe := o.Events().Subscribe()
	defer unsubscribe()

	t, err := o.Submit(question, endpoint)
	if err != nil {
		return err
	}

	dim := color.New(color.Faint)
wait:
	for {
		select {
		case <-ctx.Done():
			o.Cancel()
			<-t.Done()
			return errors.New("cancelled")
		case ev, ok := <-events:
			if !ok {
				break wait
			}
			if ev.TurnID != t.ID() {
				continue
			}
			switch {
			case ev.Type == turn.EventText && !opts.asJSON:
				fmt.Fprint(out, ev.Delta)
			case ev.Type == turn.EventTurn && ev.State == turn.StateExtracting && !opts.asJSON:
				dim.Fprintln(out, "\n\nlocating places...")
			case ev.Type == turn.EventTurn && ev.State.Terminal():
				break wait
			}
		}
	}
	<-t.Done()

	info := t.Info()
	if info.State == turn.StateError {
		return errors.New(info.Error)
	}
	if info.State == turn.StateCancelled {
		return errors.New("cancelled")
	}

	st, _ := o.MapState()
	res := askResult{
		Answer:       info.Text,
		TaskType:     st.TaskType,
		Markers:      st.Markers,
		EncodedRoute: st.EncodedRoute(),
		Viewport:     mapstate.FitBounds(st.Markers, mapstate.DefaultPadRatio),
		Validation:   info.Validation,
	}
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printResult(out, res)
	return nil
}

func printResult(out io.Writer, res askResult) {
	bold := color.New(color.Bold)
	bold.Fprintf(out, "%s\n", res.TaskType)
	if res.Validation != "" {
		color.New(color.FgYellow).Fprintf(out, "warning: %s\n", res.Validation)
	}
	for i, m := range res.Markers {
		fmt.Fprintf(out, "%2d. %s  %s\n", i+1, color.CyanString(m.Title), color.New(color.Faint).Sprintf("(%.4f, %.4f)", m.Latitude, m.Longitude))
		if m.Description != "" {
			fmt.Fprintf(out, "    %s\n", m.Description)
		}
	}
	if res.EncodedRoute != "" {
		fmt.Fprintf(out, "route: %s\n", color.GreenString(res.EncodedRoute))
	}
	if res.Viewport != nil {
		b := res.Viewport.Bounds
		fmt.Fprintf(out, "viewport: %.4f,%.4f .. %.4f,%.4f (%.0f km)\n", b.South, b.West, b.North, b.East, res.Viewport.SpanKm)
	}
}
