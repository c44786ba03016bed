package segment

import "unicode"

// Token 归一化文本中的一个词元，携带字符偏移。
// 偏移以字节计，指向原始归一化文本。
type Token struct {
	Text  string
	Start int
	End   int
}

// Tokenizer 将归一化文本切为带偏移的词元序列。
// 同一文本必须始终产生相同的切分结果（可复现 embedding 的前提）。
type Tokenizer interface {
	Tokenize(text string) []Token
}

// WordTokenizer 按 Unicode 空白切分的缺省词元器。
// 没有外部词表依赖，偏移天然对齐原文。
type WordTokenizer struct{}

func (WordTokenizer) Tokenize(text string) []Token {
	var tokens []Token
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				tokens = append(tokens, Token{Text: text[start:i], Start: start, End: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, Token{Text: text[start:], Start: start, End: len(text)})
	}
	return tokens
}
