package rules

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const sampleRules = `# hot topic rules
特斯拉
+马斯克
!二手

[GLOBAL_FILTER]
广告

[WORD_GROUPS]
涨价,降价
@5
`

func TestParseSections(t *testing.T) {
	groups, filters, globals := Parse(sampleRules)

	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}

	g := groups[0]
	if !reflect.DeepEqual(g.Normal, []string{"特斯拉"}) {
		t.Errorf("group 0 normal = %v, want [特斯拉]", g.Normal)
	}
	if !reflect.DeepEqual(g.Required, []string{"马斯克"}) {
		t.Errorf("group 0 required = %v, want [马斯克]", g.Required)
	}
	if g.GroupKey != "特斯拉" {
		t.Errorf("group 0 key = %q, want 特斯拉", g.GroupKey)
	}
	if g.MaxCount != 0 {
		t.Errorf("group 0 max_count = %d, want 0", g.MaxCount)
	}

	g = groups[1]
	if !reflect.DeepEqual(g.Normal, []string{"涨价", "降价"}) {
		t.Errorf("group 1 normal = %v, want [涨价 降价]", g.Normal)
	}
	if g.GroupKey != "涨价 降价" {
		t.Errorf("group 1 key = %q, want %q", g.GroupKey, "涨价 降价")
	}
	if g.MaxCount != 5 {
		t.Errorf("group 1 max_count = %d, want 5", g.MaxCount)
	}

	if !reflect.DeepEqual(filters, []string{"二手"}) {
		t.Errorf("filter words = %v, want [二手]", filters)
	}
	if !reflect.DeepEqual(globals, []string{"广告"}) {
		t.Errorf("global filters = %v, want [广告]", globals)
	}
}

func TestParseSectionPersistsAcrossBlocks(t *testing.T) {
	content := "[GLOBAL_FILTER]\n广告\n\n推广\n\n[WORD_GROUPS]\nAI"

	groups, _, globals := Parse(content)

	if !reflect.DeepEqual(globals, []string{"广告", "推广"}) {
		t.Errorf("global filters = %v, want [广告 推广]", globals)
	}
	if len(groups) != 1 || groups[0].GroupKey != "AI" {
		t.Errorf("groups = %v, want single AI group", groups)
	}
}

func TestParseGlobalSectionIgnoresPrefixedTokens(t *testing.T) {
	_, _, globals := Parse("[GLOBAL_FILTER]\n!广告\n+推广\n@3\n彩票")

	if !reflect.DeepEqual(globals, []string{"彩票"}) {
		t.Errorf("global filters = %v, want [彩票]", globals)
	}
}

func TestParseRequiredOnlyGroupKey(t *testing.T) {
	groups, _, _ := Parse("+央行\n+利率")

	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	if groups[0].GroupKey != "央行 利率" {
		t.Errorf("group key = %q, want %q", groups[0].GroupKey, "央行 利率")
	}
}

func TestParseSkipsEmptyAndInvalid(t *testing.T) {
	content := "!只有过滤词\n@7\n\n@abc\n@0\n@-3\nAI"

	groups, filters, _ := Parse(content)

	// A block with only filters and caps contributes no group.
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	if groups[0].GroupKey != "AI" {
		t.Errorf("group key = %q, want AI", groups[0].GroupKey)
	}
	if groups[0].MaxCount != 0 {
		t.Errorf("max_count = %d, want 0 (invalid caps ignored)", groups[0].MaxCount)
	}
	if !reflect.DeepEqual(filters, []string{"只有过滤词"}) {
		t.Errorf("filter words = %v, want [只有过滤词]", filters)
	}
}

func TestLoadMissingFile(t *testing.T) {
	groups, filters, globals, err := Load(filepath.Join(t.TempDir(), "absent.txt"))
	if err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
	if len(groups) != 0 || len(filters) != 0 || len(globals) != 0 {
		t.Errorf("missing file should yield empty rules, got %v %v %v", groups, filters, globals)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frequency_words.txt")
	if err := os.WriteFile(path, []byte(sampleRules), 0o644); err != nil {
		t.Fatal(err)
	}

	groups, _, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(groups) != 2 {
		t.Errorf("got %d groups, want 2", len(groups))
	}
}

func TestMatchGroupIndex(t *testing.T) {
	groups, filters, globals := Parse(sampleRules)

	tests := []struct {
		title string
		want  int
	}{
		{"马斯克宣布特斯拉新车型发布", 0},
		{"特斯拉发布新车型", -1},    // required 马斯克 missing
		{"特斯拉二手车行情，马斯克点赞", -1}, // shared filter word
		{"广告：特斯拉马斯克专访", -1},   // global filter word
		{"白菜涨价了", 1},
		{"油价降价窗口开启", 1},
		{"平平无奇的新闻", -1},
		{"", -1},
		{"   ", -1},
	}

	for _, tt := range tests {
		if got := MatchGroupIndex(tt.title, groups, filters, globals); got != tt.want {
			t.Errorf("MatchGroupIndex(%q) = %d, want %d", tt.title, got, tt.want)
		}
	}
}

func TestMatchCaseInsensitive(t *testing.T) {
	groups, _, _ := Parse("tesla")

	if !Matches("TESLA Model Y refresh", groups, nil, nil) {
		t.Error("uppercase title should match lowercase rule word")
	}

	groups, _, _ = Parse("TESLA")
	if !Matches("tesla model y refresh", groups, nil, nil) {
		t.Error("lowercase title should match uppercase rule word")
	}
}

func TestMatchNoGroupsAcceptsAll(t *testing.T) {
	if !Matches("任意标题", nil, nil, nil) {
		t.Error("empty rule set should accept every title")
	}
	if Matches("任意广告标题", nil, nil, []string{"广告"}) {
		t.Error("global filters still apply with no groups")
	}
	if Matches("", nil, nil, nil) {
		t.Error("empty title never matches")
	}
}

func TestMatchGroupLocalFilter(t *testing.T) {
	groups := []Group{
		{Normal: []string{"苹果"}, Filters: []string{"水果"}, GroupKey: "苹果"},
		{Normal: []string{"水果"}, GroupKey: "水果"},
	}

	if got := MatchGroupIndex("苹果水果大促销", groups, nil, nil); got != 1 {
		t.Errorf("group-local filter should push match to next group, got %d", got)
	}
	if got := MatchGroupIndex("苹果发布新手机", groups, nil, nil); got != 0 {
		t.Errorf("clean title should match first group, got %d", got)
	}
}
