package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripRuby(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"implicit base", "羅生門《らしょうもん》の下", "羅生門の下"},
		{"explicit base", "一人の｜下人《げにん》が", "一人の下人が"},
		{"explicit base with kana", "｜ある日《あるひ》の暮方", "ある日の暮方"},
		{"kana base keeps base", "きりぎりす《虫》が", "きりぎりすが"},
		{"iteration mark", "時々《ときどき》", "時々"},
		{"no ruby", "ある日の暮方の事である。", "ある日の暮方の事である。"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripRuby(tt.in))
		})
	}
}

func TestStripNotes(t *testing.T) {
	assert.Equal(t, "ある日の暮方", StripNotes("ある日の［＃「日」に傍点］暮方"))
	assert.Equal(t, "門の下", StripNotes("門※［＃「木＋(冂<人)」、第3水準1-85-56］の下"))
}

func TestNormalizeWhitespace(t *testing.T) {
	assert.Equal(t, "a b\n\nc", NormalizeWhitespace("  a \t  b\n\n\n\n\nc \n"))
}

func TestClean_Idempotent(t *testing.T) {
	in := "羅生門《らしょうもん》の｜下《した》で［＃「下」に傍点］\n\n\n\n雨  やみを待っていた。"
	once := Clean(in)
	assert.Equal(t, "羅生門の下で\n\n雨 やみを待っていた。", once)
	assert.Equal(t, once, Clean(once))
}
