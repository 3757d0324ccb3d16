// Package tokenizer exposes a single pure function, Count, used by the
// segmenter to budget units against a model's context window.
package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	once sync.Once
	enc  *tiktoken.Tiktoken
)

func encoding() *tiktoken.Tiktoken {
	once.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			// cl100k_base is bundled; a failure here means the encoding
			// table was not embedded correctly, not a runtime condition
			// calling code can recover from.
			panic("tokenizer: load cl100k_base: " + err.Error())
		}
		enc = e
	})
	return enc
}

// Count returns the number of tokens s would occupy in a chat completion
// request, per the cl100k_base encoding shared by the models this service
// targets.
func Count(s string) int {
	if s == "" {
		return 0
	}
	return len(encoding().Encode(s, nil, nil))
}
