package segment

import (
	"fmt"
	"strings"
	"testing"
)

func BenchmarkSplit(b *testing.B) {
	para := "Far out in the uncharted backwaters of the unfashionable end of the western spiral arm of the Galaxy lies a small unregarded yellow sun. Orbiting this at a distance of roughly ninety-two million miles is an utterly insignificant little blue green planet! Is it not?"
	for _, n := range []int{1, 20, 200} {
		body := strings.Repeat(para+"\n\n", n)
		b.Run(fmt.Sprintf("paragraphs=%d", n), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_ = Split(body)
			}
		})
	}
}
