// Package search answers free-text gallery queries such as "北京的风景照片"
// or "sunset beach" by extracting keywords and scoring visible images
// against their tags, category, location, camera and description.
package search

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/go-ego/gse"
)

// Tokenizer splits free text into words.
type Tokenizer interface {
	Cut(text string) []string
}

// Segmenter is the gse backed Tokenizer. It handles mixed Chinese and
// Latin text.
type Segmenter struct {
	once sync.Once
	seg  gse.Segmenter
	err  error
}

// NewSegmenter loads the embedded dictionary eagerly so the first query
// does not pay for it.
func NewSegmenter() (*Segmenter, error) {
	s := &Segmenter{}
	return s, s.load()
}

func (s *Segmenter) load() error {
	s.once.Do(func() {
		s.seg.SkipLog = true
		s.err = s.seg.LoadDictEmbed()
	})
	return s.err
}

func (s *Segmenter) Cut(text string) []string {
	if err := s.load(); err != nil {
		return strings.Fields(text)
	}
	return s.seg.Cut(text, true)
}

var stopWords = map[string]bool{
	// zh
	"的": true, "了": true, "在": true, "和": true, "是": true, "我": true, "有": true,
	"与": true, "及": true, "或": true, "一": true, "一张": true, "一些": true, "这": true,
	"那": true, "里": true, "中": true, "上": true, "下": true, "拍": true, "拍的": true,
	"照片": true, "图片": true, "相片": true, "图": true, "找": true, "查找": true,
	"搜索": true, "显示": true, "所有": true, "全部": true, "关于": true, "我的": true,
	"帮我": true, "给我": true, "看看": true,
	// en
	"a": true, "an": true, "the": true, "of": true, "in": true, "on": true, "at": true,
	"and": true, "or": true, "with": true, "for": true, "to": true, "from": true,
	"my": true, "me": true, "show": true, "find": true, "all": true, "some": true,
	"photo": true, "photos": true, "picture": true, "pictures": true, "image": true,
	"images": true, "taken": true, "by": true,
}

// Keywords extracts the distinct meaningful words of text in order of first
// appearance. Punctuation, stop words and single Latin letters are dropped.
func Keywords(t Tokenizer, text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{}
	}

	seen := map[string]bool{}
	out := []string{}
	for _, tok := range t.Cut(text) {
		tok = strings.ToLower(strings.TrimFunc(tok, func(r rune) bool {
			return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
		}))
		if tok == "" || stopWords[tok] || seen[tok] {
			continue
		}
		if utf8.RuneCountInString(tok) == 1 && tok[0] < utf8.RuneSelf && !unicode.IsDigit(rune(tok[0])) {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}
