package handlers

import "strings"

type Suggestion struct {
	Title    string `json:"title"`
	Category string `json:"category"`
}

var suggestions = []Suggestion{
	{Title: "法国普罗旺斯薰衣草花田最佳观赏路线", Category: "nature"},
	{Title: "北京胡同深度一日游路线", Category: "culture"},
	{Title: "撒哈拉沙漠最著名的绿洲城市", Category: "travel"},
	{Title: "西西里岛最地道的传统美食餐厅", Category: "food"},
	{Title: "东京奥运会场馆位置和交通指南", Category: "sports"},
	{Title: "新西兰南岛自驾十日游路线规划", Category: "travel"},
	{Title: "里约热内卢狂欢节最佳观赏地点", Category: "culture"},
	{Title: "印度金三角旅游路线及景点推荐", Category: "history"},
	{Title: "北欧四国夏季极光观测点", Category: "nature"},
	{Title: "马达加斯加特有物种分布地图", Category: "science"},
	{Title: "伊斯坦布尔跨欧亚两洲一日游", Category: "travel"},
	{Title: "澳大利亚大堡礁最佳潜水地点", Category: "adventure"},
}

// SuggestionsFor returns the catalog, filtered by category when one is given.
func SuggestionsFor(category string) []Suggestion {
	category = strings.ToLower(strings.TrimSpace(category))
	out := make([]Suggestion, 0, len(suggestions))
	for _, s := range suggestions {
		if category == "" || s.Category == category {
			out = append(out, s)
		}
	}
	return out
}
