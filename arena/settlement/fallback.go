package settlement

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"debateserver/arena/match"
	"debateserver/judge"
	"debateserver/models"
)

// DrawMargin は勝敗をつけるのに必要な正規化後の点差
const DrawMargin = 5

var sentenceBreak = regexp.MustCompile(`[.!?]+`)

// RawScore は語数、語彙の多様さ、文の長さ、文字数から主張の素点を計算する
// 入力のみで決まる純粋な関数
func RawScore(text string) float64 {
	words := strings.Fields(text)

	sentences := 0
	for _, s := range sentenceBreak.Split(text, -1) {
		if strings.TrimSpace(s) != "" {
			sentences++
		}
	}

	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[strings.ToLower(w)] = struct{}{}
	}

	avg := float64(len(words)) / float64(max(sentences, 1))

	wordScore := math.Min(float64(len(words))/10, 30)
	diversity := math.Min(float64(len(unique))/5, 25)
	clarity := 10.0
	if avg >= 8 && avg <= 25 {
		clarity = 20
	}
	lengthBonus := 0.0
	switch n := utf8.RuneCountInString(text); {
	case n > 200:
		lengthBonus = 10
	case n > 100:
		lengthBonus = 5
	}
	return wordScore + diversity + clarity + lengthBonus
}

// Normalize は2つの素点を合計100に正規化する。合計が0なら50対50
func Normalize(a, b float64) (int, int) {
	total := a + b
	if total <= 0 {
		return 50, 50
	}
	sa := int(math.Round(a / total * 100))
	return sa, 100 - sa
}

// Fallback は審査サービスが使えないときの判定
func Fallback(proText, conText string) judge.Verdict {
	pro, con := Normalize(RawScore(proText), RawScore(conText))

	v := judge.Verdict{ProScore: pro, ConScore: con}
	switch diff := pro - con; {
	case diff >= DrawMargin:
		v.Winner = models.SidePro
		v.Reasoning = "PRO presented more detailed and diverse arguments."
	case diff <= -DrawMargin:
		v.Winner = models.SideCon
		v.Reasoning = "CON presented more detailed and diverse arguments."
	default:
		v.Winner = models.SideDraw
		v.Reasoning = "Both sides presented equally strong arguments."
	}
	return v
}

// RankCompetitors はバトルロイヤルの順位を付ける
// 素点の比率を100点満点に換算し、首位が2位に DrawMargin 以上の差をつけたときだけ勝者とする
func RankCompetitors(entries []match.Entry) match.Result {
	raw := make([]float64, len(entries))
	total := 0.0
	for i, e := range entries {
		raw[i] = RawScore(e.Text)
		total += raw[i]
	}

	standings := make([]models.Standing, len(entries))
	for i, e := range entries {
		score := 0
		if total > 0 {
			score = int(math.Round(raw[i] / total * 100))
		}
		standings[i] = models.Standing{UserID: e.UserID, Name: e.Name, Count: e.Count, Score: score}
	}
	sort.SliceStable(standings, func(i, j int) bool { return standings[i].Score > standings[j].Score })

	res := match.Result{Winner: models.SideDraw, Standings: standings}
	if len(standings) == 0 {
		res.Reasoning = "No arguments were submitted."
		return res
	}

	top := standings[0]
	runnerUp := 0
	if len(standings) > 1 {
		runnerUp = standings[1].Score
	}
	if top.Score-runnerUp >= DrawMargin {
		res.Winner = models.SideCompetitor
		res.WinnerID = top.UserID
		res.Reasoning = top.Name + " presented the most detailed and diverse arguments."
	} else {
		res.Reasoning = "The leading competitors presented equally strong arguments."
	}
	return res
}
