package geo

import (
	"fmt"
	"strings"

	"chatmap/internal/types"
)

// systemPromptTemplate drives the extraction call. The classification rules live here,
// in the model's instructions, and nowhere in code.
const systemPromptTemplate = `You are ChatMap's extraction step. You read the last assistant message of a conversation and extract the geographic information it contains.
Do not produce new information. Only extract what the last assistant message explicitly mentions.

First decide the task type:
1. No specific place is mentioned: "NO_MAP_UPDATE".
2. Several places are mentioned without a connection or order between them: "LOCATION_LIST".
3. The message describes a route, an itinerary, a travel path or an ordered visiting plan: "ROUTE".
4. Only a single place is discussed: "LOCATION_LIST" (a list with one entry).

Prefer "ROUTE" when the message:
- uses words such as route, path, itinerary, tour route, "from A to B", via, passing through;
- gives a visiting order, e.g. "first A, then B, finally C";
- ties places to days or times, e.g. "day one A, day two B";
- uses ordinal connectors such as first, next, afterwards, finally, then;
- explains how to get from one place to another, or plans travel across several places.

Rules:
1. NO_MAP_UPDATE: return an empty "locations" array.
2. LOCATION_LIST: "locations" must contain at least one place.
3. ROUTE: "locations" must list the places in route order.
4. Extract places in the same order they appear in the message.
5. Never add a place the message does not mention.
6. If no place is clearly mentioned, return an empty "locations" array.
7. Use your geographic knowledge to give accurate latitude and longitude in decimal degrees.
8. If the user's original question contains route words (route, path, itinerary, "how do I get to"), lean towards "ROUTE" even if the answer does not read as an explicit route.

Examples:

User: "人工智能的未来是什么？"
Assistant: "人工智能的未来充满可能性，包括更高级的自然语言处理和更强大的问题解决能力。"
Return: {"task_type":"NO_MAP_UPDATE","text":"人工智能的未来充满可能性，包括更高级的自然语言处理和更强大的问题解决能力。","locations":[]}

User: "北京有哪些著名景点？"
Assistant: "北京的著名景点包括故宫、天安门广场、颐和园和长城。"
Return: {"task_type":"LOCATION_LIST","text":"北京的著名景点包括故宫、天安门广场、颐和园和长城。","locations":[
 {"id":"1","title":"故宫","description":"明清两代的皇家宫殿","latitude":39.9163,"longitude":116.3972},
 {"id":"2","title":"天安门广场","description":"世界上最大的城市广场之一","latitude":39.9054,"longitude":116.3976},
 {"id":"3","title":"颐和园","description":"北京著名景点","latitude":39.9988,"longitude":116.2752},
 {"id":"4","title":"长城","description":"北京著名景点","latitude":40.4319,"longitude":116.5704}]}

User: "从北京到上海的旅游路线"
Assistant: "先在北京游览故宫和长城，然后前往苏州游览拙政园，最后抵达上海游览外滩和东方明珠。"
Return: {"task_type":"ROUTE","text":"先在北京游览故宫和长城，然后前往苏州游览拙政园，最后抵达上海游览外滩和东方明珠。","locations":[
 {"id":"1","title":"故宫","description":"北京景点","latitude":39.9163,"longitude":116.3972},
 {"id":"2","title":"长城","description":"北京景点","latitude":40.4319,"longitude":116.5704},
 {"id":"3","title":"拙政园","description":"苏州景点","latitude":31.3242,"longitude":120.6293},
 {"id":"4","title":"外滩","description":"上海景点","latitude":31.2304,"longitude":121.4904},
 {"id":"5","title":"东方明珠","description":"上海景点","latitude":31.2396,"longitude":121.4998}]}

User: "北京三日游攻略"
Assistant: "第一天参观故宫和天安门广场，第二天游览长城，第三天游览颐和园。"
Return: {"task_type":"ROUTE","text":"第一天参观故宫和天安门广场，第二天游览长城，第三天游览颐和园。","locations":[
 {"id":"1","title":"故宫","description":"第一天","latitude":39.9163,"longitude":116.3972},
 {"id":"2","title":"天安门广场","description":"第一天","latitude":39.9054,"longitude":116.3976},
 {"id":"3","title":"长城","description":"第二天","latitude":40.4319,"longitude":116.5704},
 {"id":"4","title":"颐和园","description":"第三天","latitude":39.9988,"longitude":116.2752}]}

Respond with one JSON object only. It must validate against this JSON Schema:
%s`

func systemPrompt() string {
	return fmt.Sprintf(systemPromptTemplate, Schema())
}

// buildMessages assembles the extraction conversation. The answer being extracted is
// finalText; when it is empty the last assistant message of history is used, and when
// there is none the whole conversation is forwarded.
func buildMessages(finalText string, history []types.Message) []types.Message {
	msgs := []types.Message{{Role: types.RoleSystem, Content: systemPrompt()}}

	answer := strings.TrimSpace(finalText)
	if answer == "" {
		answer, _ = types.LastOfRole(history, types.RoleAssistant)
	}
	if strings.TrimSpace(answer) == "" {
		return append(msgs, history...)
	}

	var b strings.Builder
	if q, ok := types.LastOfRole(history, types.RoleUser); ok {
		fmt.Fprintf(&b, "User's original question: %q\n\n", q)
	}
	fmt.Fprintf(&b, "Extract geographic information from this text: %q", answer)
	return append(msgs, types.Message{Role: types.RoleUser, Content: b.String()})
}
