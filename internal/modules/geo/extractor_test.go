package geo

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatmap/internal/ai"
	"chatmap/internal/types"
)

type stubProvider struct {
	reply   string
	err     error
	calls   int
	gotMsgs []types.Message
	gotOpts ai.ExtractOptions
	// onCall runs inside ChatExtract, e.g. to cancel the caller mid-flight.
	onCall func()
}

func (s *stubProvider) ChatStream(context.Context, []types.Message, ai.EndpointConfig) (ai.FragmentStream, error) {
	return nil, errors.New("not used")
}

func (s *stubProvider) ChatExtract(_ context.Context, msgs []types.Message, _ ai.EndpointConfig, opts ai.ExtractOptions) (string, error) {
	s.calls++
	s.gotMsgs = msgs
	s.gotOpts = opts
	if s.onCall != nil {
		s.onCall()
	}
	return s.reply, s.err
}

var cfg = ai.EndpointConfig{Provider: ai.ProviderSiliconFlow, BaseURL: "https://api.siliconflow.cn/v1", Model: "Qwen/Qwen2.5-7B-Instruct", APIKey: "k", Temperature: 0.7}

var beijingHistory = []types.Message{{Role: types.RoleUser, Content: "北京有哪些著名景点"}}

const beijingList = `{"task_type":"LOCATION_LIST","text":"...","locations":[
 {"id":"1","title":"故宫","description":"皇家宫殿","latitude":39.9163,"longitude":116.3972},
 {"id":"2","title":"天安门广场","description":"广场","latitude":39.9054,"longitude":116.3976},
 {"id":"3","title":"颐和园","description":"园林","latitude":39.9988,"longitude":116.2752},
 {"id":"4","title":"长城","description":"长城","latitude":40.4319,"longitude":116.5704}]}`

const beijingShanghaiRoute = `{"task_type":"ROUTE","text":"...","locations":[
 {"id":"1","title":"故宫","description":"北京","latitude":39.9163,"longitude":116.3972},
 {"id":"2","title":"长城","description":"北京","latitude":40.4319,"longitude":116.5704},
 {"id":"3","title":"拙政园","description":"苏州","latitude":31.3242,"longitude":120.6293},
 {"id":"4","title":"外滩","description":"上海","latitude":31.2304,"longitude":121.4904},
 {"id":"5","title":"东方明珠","description":"上海","latitude":31.2396,"longitude":121.4998}]}`

func titles(locs []Location) []string {
	out := make([]string, len(locs))
	for i, l := range locs {
		out[i] = l.Title
	}
	return out
}

func TestExtract_Scenarios(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		wantType  TaskType
		wantTitle []string
		dropped   int
	}{
		{
			name:      "location list",
			reply:     beijingList,
			wantType:  TaskLocationList,
			wantTitle: []string{"故宫", "天安门广场", "颐和园", "长城"},
		},
		{
			name:      "route keeps order",
			reply:     beijingShanghaiRoute,
			wantType:  TaskRoute,
			wantTitle: []string{"故宫", "长城", "拙政园", "外滩", "东方明珠"},
		},
		{
			name:      "no map update",
			reply:     `{"task_type":"NO_MAP_UPDATE","text":"人工智能的未来充满可能性","locations":[]}`,
			wantType:  TaskNoMapUpdate,
			wantTitle: []string{},
		},
		{
			name: "latitude 200 is dropped",
			reply: `{"task_type":"LOCATION_LIST","text":"x","locations":[
				{"id":"1","title":"故宫","description":"d","latitude":39.9163,"longitude":116.3972},
				{"id":"2","title":"Bad","description":"d","latitude":200,"longitude":116.0},
				{"id":"3","title":"长城","description":"d","latitude":40.4319,"longitude":116.5704}]}`,
			wantType:  TaskLocationList,
			wantTitle: []string{"故宫", "长城"},
			dropped:   1,
		},
		{
			name:      "all invalid becomes no map update",
			reply:     `{"task_type":"ROUTE","text":"x","locations":[{"title":"Bad","latitude":"abc","longitude":1}]}`,
			wantType:  TaskNoMapUpdate,
			wantTitle: []string{},
			dropped:   1,
		},
		{
			name: "non-finite coordinates are dropped",
			reply: `{"task_type":"LOCATION_LIST","text":"x","locations":[
				{"id":"1","title":"NaN","latitude":"NaN","longitude":116.0},
				{"id":"2","title":"Inf","latitude":39.9,"longitude":"Infinity"},
				{"id":"3","title":"Huge","latitude":1e999,"longitude":116.0},
				{"id":"4","title":"故宫","latitude":39.9163,"longitude":116.3972}]}`,
			wantType:  TaskLocationList,
			wantTitle: []string{"故宫"},
			dropped:   3,
		},
		{
			name: "longitude just past 180 is dropped",
			reply: `{"task_type":"ROUTE","text":"x","locations":[
				{"id":"1","title":"Fiji","latitude":-17.7,"longitude":180.0001},
				{"id":"2","title":"Samoa","latitude":-13.8,"longitude":-180.0001},
				{"id":"3","title":"Tonga","latitude":-21.1,"longitude":-175.2}]}`,
			wantType:  TaskRoute,
			wantTitle: []string{"Tonga"},
			dropped:   2,
		},
		{
			name: "bounds are inclusive",
			reply: `{"task_type":"LOCATION_LIST","text":"x","locations":[
				{"id":"1","title":"South Pole","latitude":-90,"longitude":-180},
				{"id":"2","title":"North Pole","latitude":90,"longitude":180},
				{"id":"3","title":"Too far north","latitude":90.0001,"longitude":0}]}`,
			wantType:  TaskLocationList,
			wantTitle: []string{"South Pole", "North Pole"},
			dropped:   1,
		},
		{
			name:      "fenced json",
			reply:     "```json\n" + `{"task_type":"location_list","text":"x","locations":[{"id":1,"title":"A","description":"d","latitude":"10.5","longitude":"20"}]}` + "\n```",
			wantType:  TaskLocationList,
			wantTitle: []string{"A"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &stubProvider{reply: tt.reply}
			ex := NewExtractor(p, Options{}, nil)

			res, err := ex.Extract(context.Background(), "answer text", beijingHistory, cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, res.TaskType)
			assert.Equal(t, tt.wantTitle, titles(res.Locations))
			assert.Len(t, res.Dropped, tt.dropped)
			assert.Equal(t, "answer text", res.SourceText)
			for _, l := range res.Locations {
				assert.True(t, l.Latitude >= -90 && l.Latitude <= 90)
				assert.True(t, l.Longitude >= -180 && l.Longitude <= 180)
			}
		})
	}
}

func TestExtract_StrictRejectsWholeResult(t *testing.T) {
	p := &stubProvider{reply: `{"task_type":"LOCATION_LIST","text":"x","locations":[
		{"id":"1","title":"A","latitude":10,"longitude":10},
		{"id":"2","title":"B","latitude":200,"longitude":10}]}`}
	ex := NewExtractor(p, Options{Strict: true}, nil)

	_, err := ex.Extract(context.Background(), "x", beijingHistory, cfg)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Dropped, 1)
}

func TestExtract_ShapeErrors(t *testing.T) {
	replies := map[string]string{
		"not json":          `Sorry, I cannot help`,
		"array":             `[1,2]`,
		"bad task type":     `{"task_type":"MAP","text":"x","locations":[]}`,
		"task type number":  `{"task_type":3,"text":"x","locations":[]}`,
		"locations object":  `{"task_type":"ROUTE","text":"x","locations":{}}`,
		"locations missing": `{"task_type":"ROUTE","text":"x"}`,
		"text not string":   `{"task_type":"ROUTE","text":5,"locations":[]}`,
	}
	for name, reply := range replies {
		t.Run(name, func(t *testing.T) {
			ex := NewExtractor(&stubProvider{reply: reply}, Options{}, nil)
			_, err := ex.Extract(context.Background(), "x", beijingHistory, cfg)
			var ve *ValidationError
			assert.True(t, errors.As(err, &ve), "got %v", err)
		})
	}
}

func TestExtract_DefaultsAndUniqueIDs(t *testing.T) {
	p := &stubProvider{reply: `{"task_type":"ROUTE","text":"x","locations":[
		{"latitude":1,"longitude":2},
		{"id":"a","title":"B","latitude":3,"longitude":4},
		{"id":"a","title":"C","latitude":5,"longitude":6}]}`}
	ex := NewExtractor(p, Options{}, nil)

	res, err := ex.Extract(context.Background(), "x", beijingHistory, cfg)
	require.NoError(t, err)
	require.Len(t, res.Locations, 3)
	assert.Equal(t, Location{ID: "location-1", Title: "Location 1", Description: defaultDescription, Latitude: 1, Longitude: 2}, res.Locations[0])
	assert.Equal(t, "a", res.Locations[1].ID)
	assert.Equal(t, "location-3", res.Locations[2].ID)
}

func TestExtract_CancelledBeforeCall(t *testing.T) {
	p := &stubProvider{reply: beijingList}
	ex := NewExtractor(p, Options{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ex.Extract(ctx, "x", beijingHistory, cfg)
	assert.ErrorIs(t, err, ai.ErrCancelled)
	assert.Equal(t, 0, p.calls)
}

func TestExtract_CancelledDuringCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &stubProvider{reply: beijingList, onCall: cancel}
	ex := NewExtractor(p, Options{}, nil)

	res, err := ex.Extract(ctx, "x", beijingHistory, cfg)
	assert.ErrorIs(t, err, ai.ErrCancelled)
	assert.Empty(t, res.Locations)
}

func TestExtract_NetworkError(t *testing.T) {
	p := &stubProvider{err: &ai.NetworkError{Op: "extract", StatusCode: 502}}
	ex := NewExtractor(p, Options{}, nil)
	_, err := ex.Extract(context.Background(), "x", beijingHistory, cfg)
	assert.True(t, ai.IsNetwork(err))
}

func TestExtract_ConfigError(t *testing.T) {
	p := &stubProvider{reply: beijingList}
	ex := NewExtractor(p, Options{}, nil)
	_, err := ex.Extract(context.Background(), "x", beijingHistory, ai.EndpointConfig{Provider: ai.ProviderCustom})
	assert.True(t, ai.IsConfig(err))
	assert.Equal(t, 0, p.calls)
}

func TestExtract_RequestCarriesQuestionAndSchema(t *testing.T) {
	p := &stubProvider{reply: beijingList}
	ex := NewExtractor(p, Options{}, nil)

	_, err := ex.Extract(context.Background(), "北京的著名景点包括故宫", beijingHistory, cfg)
	require.NoError(t, err)
	require.Len(t, p.gotMsgs, 2)
	assert.Equal(t, types.RoleSystem, p.gotMsgs[0].Role)
	assert.Contains(t, p.gotMsgs[0].Content, `"task_type"`)
	assert.Contains(t, p.gotMsgs[1].Content, "北京有哪些著名景点")
	assert.Contains(t, p.gotMsgs[1].Content, "北京的著名景点包括故宫")
	assert.NotEmpty(t, p.gotOpts.Schema)
}

func TestBuildMessages_FallsBackToConversation(t *testing.T) {
	msgs := buildMessages("", beijingHistory)
	require.Len(t, msgs, 2)
	assert.Equal(t, beijingHistory[0], msgs[1])

	withAnswer := append([]types.Message{}, beijingHistory...)
	withAnswer = append(withAnswer, types.Message{Role: types.RoleAssistant, Content: "故宫"})
	msgs = buildMessages("", withAnswer)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Content, "故宫")
}

func TestSchema(t *testing.T) {
	var doc map[string]any
	require.NoError(t, json.Unmarshal(Schema(), &doc))
	props, ok := doc["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "task_type")
	assert.Contains(t, props, "locations")
	assert.Equal(t, "object", doc["type"])
}
