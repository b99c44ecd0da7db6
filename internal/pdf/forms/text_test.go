package forms

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeTextString(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"ascii", "Potencia", "Potencia"},
		{"latin1", "Administraci\xf3n", "Administración"},
		{"pdfdoc specials", "\x84 \x92 \xa0", "— ™ €"},
		{"utf16", "\xfe\xff\x00N\x00I\x00F\x01\x41", "NIFŁ"},
		{"utf8 bom", "\xef\xbb\xbfMadrid", "Madrid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeTextString(tt.raw))
		})
	}
}

func TestEncodeTextString(t *testing.T) {
	assert.Equal(t, "B87512345", EncodeTextString("B87512345"))
	assert.Equal(t, "Administraci\xf3n \x80", EncodeTextString("Administración •"))
	assert.Equal(t, "\xa0", EncodeTextString("€"))

	utf16 := EncodeTextString("Łódź")
	assert.Equal(t, "\xfe\xff\x01\x41\x00\xf3\x00d\x01\x7a", utf16)
	assert.Equal(t, "Łódź", DecodeTextString(utf16))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, s := range []string{"", "NIF", "Señal ™", "ﬁn", "日本", "tab\there", " nbsp"} {
		if got := DecodeTextString(EncodeTextString(s)); got != s {
			t.Errorf("round trip of %q = %q", s, got)
		}
	}
}

func TestWinAnsi(t *testing.T) {
	assert.Equal(t, []byte("Se\xf1al \x80 ?"), winAnsi("Señal € Ł"))
}

func TestUnencodable(t *testing.T) {
	assert.Empty(t, unencodable("Señal € Ñ"))
	assert.Equal(t, []rune{'Ł', 'ź'}, unencodable("Łódź Ł"))
}
