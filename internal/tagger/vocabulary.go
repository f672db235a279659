// Package tagger suggests gallery tags by comparing an image embedding with
// precomputed text embeddings of a fixed bilingual vocabulary.
package tagger

// Label is one vocabulary entry. Key is the English prompt the text
// embedding was computed from; Name is the Chinese display name.
type Label struct {
	Key  string
	Name string
}

// Display returns the label text for a language ("zh" or "en").
func (l Label) Display(lang string) string {
	if lang == "en" {
		return l.Key
	}
	return l.Name
}

// Vocabulary is the candidate label set, in embedding order.
var Vocabulary = []Label{
	{"landscape", "风景"},
	{"seashore", "海边"},
	{"mountain", "山脉"},
	{"forest", "森林"},
	{"sky", "天空"},
	{"person", "人物"},
	{"man", "男人"},
	{"woman", "女人"},
	{"cat", "猫"},
	{"dog", "狗"},
	{"flower", "花朵"},
	{"tree", "树木"},
	{"food", "美食"},
	{"building", "建筑"},
	{"car", "汽车"},
	{"screenshot", "截图"},
	{"text", "文字资料"},
}

// Fallback is suggested when no label is confident enough.
var Fallback = Label{"uncategorized", "其他"}
