package query

import (
	"strings"

	"trendradar/internal/config"
)

// Sentiment labels produced by Lexicon.Sentiment.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// Lexicon bundles the word lists behind sentiment classification, entity
// search and keyword extraction. Every list ships with a built-in default;
// a non-empty list in the configuration replaces the corresponding default
// outright.
type Lexicon struct {
	positive []string
	negative []string
	persons  []string
	places   []string
	orgs     []string
	stop     map[string]struct{}
}

// buildLexicon merges the built-in word lists with configuration overrides.
// Configured stop words extend the default set, the other lists replace it.
func buildLexicon(cfg *config.Config) Lexicon {
	lex := Lexicon{
		positive: defaultPositive,
		negative: defaultNegative,
		persons:  defaultPersons,
		places:   defaultPlaces,
		orgs:     defaultOrgs,
		stop:     make(map[string]struct{}, len(defaultStopWords)+8),
	}
	for _, w := range defaultStopWords {
		lex.stop[w] = struct{}{}
	}
	if cfg == nil {
		return lex
	}
	kw := cfg.Keywords
	if len(kw.SentimentPositive) > 0 {
		lex.positive = kw.SentimentPositive
	}
	if len(kw.SentimentNegative) > 0 {
		lex.negative = kw.SentimentNegative
	}
	if len(kw.EntityPersons) > 0 {
		lex.persons = kw.EntityPersons
	}
	if len(kw.EntityPlaces) > 0 {
		lex.places = kw.EntityPlaces
	}
	if len(kw.EntityOrgs) > 0 {
		lex.orgs = kw.EntityOrgs
	}
	for _, w := range kw.StopWords {
		w = strings.TrimSpace(strings.ToLower(w))
		if w != "" {
			lex.stop[w] = struct{}{}
		}
	}
	return lex
}

// Sentiment classifies a title by counting lexicon hits per class. Ties and
// zero hits both land on neutral.
func (l Lexicon) Sentiment(title string) string {
	lower := strings.ToLower(title)
	pos, neg := 0, 0
	for _, w := range l.positive {
		if strings.Contains(lower, strings.ToLower(w)) {
			pos++
		}
	}
	for _, w := range l.negative {
		if strings.Contains(lower, strings.ToLower(w)) {
			neg++
		}
	}
	switch {
	case pos > neg:
		return SentimentPositive
	case neg > pos:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// Entities returns every person, place and organization token known to the
// lexicon, in that order.
func (l Lexicon) Entities() []string {
	out := make([]string, 0, len(l.persons)+len(l.places)+len(l.orgs))
	out = append(out, l.persons...)
	out = append(out, l.places...)
	out = append(out, l.orgs...)
	return out
}

// IsStop reports whether token is in the stop set. Matching is
// case-insensitive.
func (l Lexicon) IsStop(token string) bool {
	_, ok := l.stop[strings.ToLower(token)]
	return ok
}

// The built-in lists are intentionally compact: enough coverage for hot-board
// headlines in Chinese and English without pulling in a segmentation model.
var defaultPositive = []string{
	"突破", "成功", "增长", "上涨", "利好", "创新高", "丰收", "获奖", "胜利", "夺冠",
	"回暖", "复苏", "提升", "向好", "喜讯", "点赞", "感动", "暖心", "福利", "减免",
	"开通", "落地", "达成", "修复", "康复", "脱贫", "降价", "免费", "优惠", "扩容",
	"win", "wins", "record high", "breakthrough", "success", "growth", "surge",
	"rally", "recover", "approved", "launch", "milestone",
}

var defaultNegative = []string{
	"下跌", "暴跌", "跳水", "亏损", "裁员", "倒闭", "破产", "事故", "爆炸", "火灾",
	"地震", "洪水", "台风", "坠毁", "遇难", "死亡", "伤亡", "失联", "被骗", "诈骗",
	"造假", "违规", "处罚", "罚款", "召回", "退市", "停产", "滞销", "危机", "警告",
	"辟谣", "翻车", "塌方", "泄露", "争议", "冲突", "罢工", "封禁",
	"crash", "plunge", "lawsuit", "fraud", "layoff", "bankrupt", "recall",
	"scandal", "outage", "breach", "warning", "dies", "killed",
}

var defaultPersons = []string{
	"马斯克", "奥特曼", "普京", "拜登", "特朗普", "泽连斯基", "梅西", "C罗", "姆巴佩",
	"马云", "雷军", "任正非", "库克", "黄仁勋", "扎克伯格",
	"musk", "altman", "putin", "biden", "trump", "messi", "ronaldo",
}

var defaultPlaces = []string{
	"北京", "上海", "广州", "深圳", "杭州", "成都", "重庆", "武汉", "西安", "南京",
	"天津", "苏州", "香港", "澳门", "台湾", "新疆", "西藏", "东北", "中国", "美国",
	"日本", "韩国", "俄罗斯", "乌克兰", "欧洲", "中东", "印度", "英国", "法国", "德国",
	"gaza", "ukraine", "taiwan", "california", "texas",
}

var defaultOrgs = []string{
	"华为", "腾讯", "阿里", "字节", "百度", "小米", "比亚迪", "特斯拉", "苹果", "微软",
	"谷歌", "英伟达", "央行", "证监会", "教育部", "卫健委", "国务院", "联合国", "欧盟",
	"nasa", "openai", "google", "apple", "microsoft", "nvidia", "tesla", "fed",
}

var defaultStopWords = []string{
	// Chinese function words and headline boilerplate.
	"的", "了", "在", "是", "我", "有", "和", "就", "不", "人", "都", "一", "一个",
	"上", "也", "很", "到", "说", "要", "去", "你", "会", "着", "没有", "看", "好",
	"这", "那", "还", "吗", "吧", "啊", "呢", "为", "与", "被", "从", "对", "能",
	"将", "已", "他", "她", "它", "们", "该", "再", "最", "更", "但", "而", "或",
	"热搜", "回应", "网友", "曝", "疑似", "官方", "媒体", "记者", "视频", "直播",
	// English function words.
	"the", "a", "an", "of", "to", "in", "on", "for", "and", "or", "is", "are",
	"was", "were", "be", "with", "as", "at", "by", "from", "it", "its", "this",
	"that", "after", "over", "new", "how", "why", "what", "says", "say",
}
