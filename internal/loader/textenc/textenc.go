// Package textenc normalizes text decoded by loaders to valid UTF-8,
// including the best-effort recovery of a specific double-encoding bug seen
// in some desktop chat exports: CP1251 bytes read as if they were UTF-16LE
// code units, one rune per two original bytes. It is grounded on the
// teacher's textutil.EnsureUTF8 charset-detection fallback, generalized and
// extended with the CP1251-in-UTF16LE repair spec.md §4.2 requires of
// loaders.
package textenc

import (
	"strings"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// Normalize returns s as valid UTF-8, repairing the CP1251-in-UTF16LE
// double-encoding if detected, then falling back to general charset
// detection, then to invalid-byte replacement. It never returns invalid
// UTF-8.
func Normalize(s string) string {
	if fixed, ok := fixDoubleEncodedCP1251(s); ok {
		return fixed
	}
	if utf8.ValidString(s) {
		return s
	}
	return EnsureUTF8(s)
}

// fixDoubleEncodedCP1251 detects and reverses the bug where a CP1251 byte
// stream was decoded as UTF-16LE: each resulting rune packs two original
// CP1251 bytes, low byte first. Reversing it means unpacking every rune back
// into its two source bytes and decoding that byte stream as CP1251.
//
// Detection is heuristic: s must already be valid UTF-8 (the corruption
// happens upstream of this loader, so by the time it reaches us it is a
// normal, if nonsensical-looking, Unicode string), every rune must fit in 16
// bits (true of any rune that came from a UTF-16 code unit), and the
// resulting decode must be valid UTF-8 with a majority of Cyrillic letters.
func fixDoubleEncodedCP1251(s string) (string, bool) {
	if !utf8.ValidString(s) || s == "" {
		return "", false
	}
	runes := []rune(s)
	buf := make([]byte, 0, len(runes)*2)
	for _, r := range runes {
		if r < 0 || r > 0xFFFF {
			return "", false
		}
		buf = append(buf, byte(r&0xFF), byte(r>>8))
	}
	// An odd-length CP1251 source leaves one zero pad byte in the high half
	// of the last rune; drop it so it does not decode to U+0000.
	if len(buf) > 0 && buf[len(buf)-1] == 0 {
		buf = buf[:len(buf)-1]
	}
	decoded, err := charmap.Windows1251.NewDecoder().Bytes(buf)
	if err != nil || !utf8.Valid(decoded) {
		return "", false
	}
	out := string(decoded)
	if !looksLikeRecoveredCyrillic(out) {
		return "", false
	}
	return out, true
}

// looksLikeRecoveredCyrillic guards against false-positive repairs: ordinary
// Latin or punctuation-only text would also round-trip through the
// byte-unpacking step without erroring, so we additionally require a
// plausible share of Cyrillic letters and an absence of control characters.
func looksLikeRecoveredCyrillic(s string) bool {
	var cyrillic, letters, controls int
	for _, r := range s {
		switch {
		case r < 0x20 && r != '\n' && r != '\t' && r != '\r':
			controls++
		case r >= 0x0400 && r <= 0x04FF:
			cyrillic++
			letters++
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			letters++
		}
	}
	if controls > 0 || letters == 0 {
		return false
	}
	return cyrillic*2 >= letters
}

// EnsureUTF8 ensures a string is valid UTF-8, detecting its source charset
// when it is not. If already valid UTF-8, it is returned unchanged.
func EnsureUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	data := []byte(s)

	minConfidence := 30
	if len(data) > 50 {
		minConfidence = 50
	}
	detector := chardet.NewTextDetector()
	if result, err := detector.DetectBest(data); err == nil && result.Confidence >= minConfidence {
		if enc := encodingByName(result.Charset); enc != nil {
			if decoded, err := enc.NewDecoder().Bytes(data); err == nil && utf8.Valid(decoded) {
				return string(decoded)
			}
		}
	}

	for _, enc := range []encoding.Encoding{
		charmap.Windows1251,
		charmap.Windows1252,
		charmap.ISO8859_1,
		charmap.ISO8859_15,
		japanese.ShiftJIS,
		japanese.EUCJP,
		korean.EUCKR,
		simplifiedchinese.GBK,
		traditionalchinese.Big5,
	} {
		if decoded, err := enc.NewDecoder().Bytes(data); err == nil && utf8.Valid(decoded) {
			return string(decoded)
		}
	}

	return sanitizeUTF8(s)
}

func sanitizeUTF8(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			sb.WriteRune('�')
			i++
		} else {
			sb.WriteRune(r)
			i += size
		}
	}
	return sb.String()
}

func encodingByName(name string) encoding.Encoding {
	switch name {
	case "windows-1251", "CP1251", "cp1251":
		return charmap.Windows1251
	case "windows-1252", "CP1252", "cp1252":
		return charmap.Windows1252
	case "ISO-8859-1", "iso-8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1
	case "ISO-8859-15", "iso-8859-15", "latin9":
		return charmap.ISO8859_15
	case "Shift_JIS", "shift_jis", "shift-jis", "sjis":
		return japanese.ShiftJIS
	case "EUC-JP", "euc-jp", "eucjp":
		return japanese.EUCJP
	case "EUC-KR", "euc-kr", "euckr":
		return korean.EUCKR
	case "GB2312", "gb2312", "GBK", "gbk":
		return simplifiedchinese.GBK
	case "GB18030", "gb18030":
		return simplifiedchinese.GB18030
	case "Big5", "big5", "big-5":
		return traditionalchinese.Big5
	case "KOI8-R", "koi8-r":
		return charmap.KOI8R
	default:
		return nil
	}
}
