package codec

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

// TextEncoding is one entry of the closed text encoding catalog.
type TextEncoding uint8

const (
	UTF8 TextEncoding = iota
	UTF16LE
	UTF16BE
	ASCII
	ISO8859_1
	ISO8859_2
	ISO8859_3
	ISO8859_4
	ISO8859_5
	ISO8859_6
	ISO8859_7
	ISO8859_8
	ISO8859_9
	ISO8859_10
	ISO8859_13
	ISO8859_14
	ISO8859_15
	ISO8859_16
	Windows874
	Windows1250
	Windows1251
	Windows1252
	Windows1253
	Windows1254
	Windows1255
	Windows1256
	Windows1257
	Windows1258
	KOI8R
	KOI8U
	IBM866
	Macintosh
	MacCyrillic
	GBK
	GB18030
	HZGB2312
	Big5
	ShiftJIS
	EUCJP
	ISO2022JP
	EUCKR

	encodingCount
)

// asciiSubstitute is written for runes an 8-bit or multi-byte encoding cannot
// represent.
const asciiSubstitute = '?'

type encodingEntry struct {
	name    string
	aliases []string
	enc     encoding.Encoding
}

// catalog is indexed by TextEncoding. ASCII has no x/text codec; it is
// handled inline by Decode/Encode.
var catalog = [encodingCount]encodingEntry{
	UTF8:        {"utf-8", []string{"utf8", "unicode-1-1-utf-8"}, unicode.UTF8},
	UTF16LE:     {"utf-16le", []string{"utf16le", "utf-16"}, unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)},
	UTF16BE:     {"utf-16be", []string{"utf16be"}, unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)},
	ASCII:       {"ascii", []string{"us-ascii", "ansi_x3.4-1968"}, nil},
	ISO8859_1:   {"iso-8859-1", []string{"latin1", "iso8859-1", "l1"}, charmap.ISO8859_1},
	ISO8859_2:   {"iso-8859-2", []string{"latin2", "iso8859-2", "l2"}, charmap.ISO8859_2},
	ISO8859_3:   {"iso-8859-3", []string{"latin3", "iso8859-3", "l3"}, charmap.ISO8859_3},
	ISO8859_4:   {"iso-8859-4", []string{"latin4", "iso8859-4", "l4"}, charmap.ISO8859_4},
	ISO8859_5:   {"iso-8859-5", []string{"cyrillic", "iso8859-5"}, charmap.ISO8859_5},
	ISO8859_6:   {"iso-8859-6", []string{"arabic", "iso8859-6"}, charmap.ISO8859_6},
	ISO8859_7:   {"iso-8859-7", []string{"greek", "iso8859-7"}, charmap.ISO8859_7},
	ISO8859_8:   {"iso-8859-8", []string{"hebrew", "iso8859-8"}, charmap.ISO8859_8},
	ISO8859_9:   {"iso-8859-9", []string{"latin5", "iso8859-9", "l5"}, charmap.ISO8859_9},
	ISO8859_10:  {"iso-8859-10", []string{"latin6", "iso8859-10", "l6"}, charmap.ISO8859_10},
	ISO8859_13:  {"iso-8859-13", []string{"iso8859-13"}, charmap.ISO8859_13},
	ISO8859_14:  {"iso-8859-14", []string{"iso8859-14"}, charmap.ISO8859_14},
	ISO8859_15:  {"iso-8859-15", []string{"latin9", "iso8859-15", "l9"}, charmap.ISO8859_15},
	ISO8859_16:  {"iso-8859-16", []string{"latin10", "iso8859-16"}, charmap.ISO8859_16},
	Windows874:  {"windows-874", []string{"cp874", "tis-620"}, charmap.Windows874},
	Windows1250: {"windows-1250", []string{"cp1250"}, charmap.Windows1250},
	Windows1251: {"windows-1251", []string{"cp1251"}, charmap.Windows1251},
	Windows1252: {"windows-1252", []string{"cp1252"}, charmap.Windows1252},
	Windows1253: {"windows-1253", []string{"cp1253"}, charmap.Windows1253},
	Windows1254: {"windows-1254", []string{"cp1254"}, charmap.Windows1254},
	Windows1255: {"windows-1255", []string{"cp1255"}, charmap.Windows1255},
	Windows1256: {"windows-1256", []string{"cp1256"}, charmap.Windows1256},
	Windows1257: {"windows-1257", []string{"cp1257"}, charmap.Windows1257},
	Windows1258: {"windows-1258", []string{"cp1258"}, charmap.Windows1258},
	KOI8R:       {"koi8-r", []string{"koi8r", "koi8"}, charmap.KOI8R},
	KOI8U:       {"koi8-u", []string{"koi8u"}, charmap.KOI8U},
	IBM866:      {"ibm866", []string{"cp866", "866"}, charmap.CodePage866},
	Macintosh:   {"macintosh", []string{"mac", "x-mac-roman"}, charmap.Macintosh},
	MacCyrillic: {"x-mac-cyrillic", []string{"mac-cyrillic"}, charmap.MacintoshCyrillic},
	GBK:         {"gbk", []string{"gb2312", "cp936", "x-gbk"}, simplifiedchinese.GBK},
	GB18030:     {"gb18030", nil, simplifiedchinese.GB18030},
	HZGB2312:    {"hz-gb-2312", []string{"hz"}, simplifiedchinese.HZGB2312},
	Big5:        {"big5", []string{"big5-hkscs", "cn-big5"}, traditionalchinese.Big5},
	ShiftJIS:    {"shift-jis", []string{"shift_jis", "sjis", "ms_kanji"}, japanese.ShiftJIS},
	EUCJP:       {"euc-jp", []string{"eucjp"}, japanese.EUCJP},
	ISO2022JP:   {"iso-2022-jp", []string{"iso2022jp"}, japanese.ISO2022JP},
	EUCKR:       {"euc-kr", []string{"euckr", "ks_c_5601-1987"}, korean.EUCKR},
}

var encodingsByName = func() map[string]TextEncoding {
	m := make(map[string]TextEncoding, int(encodingCount)*3)
	for i := range catalog {
		id := TextEncoding(i)
		m[catalog[i].name] = id
		for _, alias := range catalog[i].aliases {
			m[alias] = id
		}
	}
	return m
}()

// ParseTextEncoding resolves a canonical name or alias, case-insensitively.
func ParseTextEncoding(name string) (TextEncoding, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if id, ok := encodingsByName[key]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidEncodingName, name)
}

// TextEncodings lists the catalog in declaration order.
func TextEncodings() []TextEncoding {
	out := make([]TextEncoding, 0, encodingCount)
	for i := TextEncoding(0); i < encodingCount; i++ {
		out = append(out, i)
	}
	return out
}

func (e TextEncoding) Valid() bool {
	return e < encodingCount
}

func (e TextEncoding) String() string {
	if !e.Valid() {
		return fmt.Sprintf("encoding(%d)", uint8(e))
	}
	return catalog[e].name
}

// MarshalText and UnmarshalText let the catalog appear by name in TOML/JSON.
func (e TextEncoding) MarshalText() ([]byte, error) {
	if !e.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidEncodingName, uint8(e))
	}
	return []byte(catalog[e].name), nil
}

func (e *TextEncoding) UnmarshalText(b []byte) error {
	id, err := ParseTextEncoding(string(b))
	if err != nil {
		return err
	}
	*e = id
	return nil
}

// decodeText never fails; bytes the encoding cannot map become U+FFFD.
func decodeText(b []byte, e TextEncoding) (string, error) {
	if !e.Valid() {
		return "", fmt.Errorf("%w: %d", ErrInvalidEncodingName, uint8(e))
	}
	switch e {
	case UTF8:
		return strings.ToValidUTF8(string(b), string(utf8.RuneError)), nil
	case ASCII:
		var sb strings.Builder
		sb.Grow(len(b))
		for _, c := range b {
			if c < utf8.RuneSelf {
				sb.WriteByte(c)
			} else {
				sb.WriteRune(utf8.RuneError)
			}
		}
		return sb.String(), nil
	}
	out, err := catalog[e].enc.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), string(utf8.RuneError)), nil
	}
	return string(out), nil
}

// encodeText masks to 7 bits for ASCII and substitutes '?' for runes other
// encodings cannot represent.
func encodeText(s string, e TextEncoding) ([]byte, error) {
	if !e.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidEncodingName, uint8(e))
	}
	switch e {
	case UTF8:
		return []byte(s), nil
	case ASCII:
		out := make([]byte, 0, len(s))
		for _, r := range s {
			out = append(out, byte(r&0x7F))
		}
		return out, nil
	}
	enc := catalog[e].enc.NewEncoder()
	if out, err := enc.String(s); err == nil {
		return []byte(out), nil
	}
	out := make([]byte, 0, len(s))
	for _, r := range s {
		chunk, err := enc.String(string(r))
		if err != nil {
			out = append(out, asciiSubstitute)
			continue
		}
		out = append(out, chunk...)
	}
	return out, nil
}
