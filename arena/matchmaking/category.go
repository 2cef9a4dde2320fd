package matchmaking

import (
	"sort"
	"strings"

	"debateserver/arena/errs"
	"debateserver/models"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// AnyCategory はカテゴリ指定なしのキュー
const AnyCategory = "any"

// Categories は受け付けるカテゴリの一覧
var Categories = []string{
	"Politics",
	"Technology",
	"Sports",
	"Philosophy",
	"Science",
	"Entertainment",
	"Economy",
	"Social",
	"Other",
}

var partySizes = map[string]int{
	models.Type1v1:          2,
	models.Type2v2:          4,
	models.Type3v3:          6,
	models.TypeBattleRoyale: 4,
}

// PartySize は対戦形式に必要な人数を返す。空文字は1v1として扱う
func PartySize(matchType string) (string, int, error) {
	if matchType == "" {
		matchType = models.Type1v1
	}
	size, ok := partySizes[matchType]
	if !ok {
		return "", 0, errs.ErrInvalidMatchType
	}
	return matchType, size, nil
}

// ResolveCategory は入力を正規のカテゴリ名に変換する
// 大文字小文字を無視した完全一致を優先し、なければあいまい検索で最も近いものを採用する
func ResolveCategory(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" || strings.EqualFold(input, AnyCategory) {
		return AnyCategory, nil
	}

	lookup := make(map[string]string, len(Categories))
	lower := make([]string, 0, len(Categories))
	for _, c := range Categories {
		l := strings.ToLower(c)
		lookup[l] = c
		lower = append(lower, l)
	}

	needle := strings.ToLower(input)
	if c, ok := lookup[needle]; ok {
		return c, nil
	}

	ranks := fuzzy.RankFind(needle, lower)
	if len(ranks) == 0 {
		return "", errs.ErrInvalidCategory
	}
	sort.Sort(ranks)
	return lookup[ranks[0].Target], nil
}
