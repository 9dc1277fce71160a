package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleContent = `
q 1 0 0 1 0 0 cm
BT
/F1 12 Tf
72 760 Td
(Form 1040) Tj
0 -14 Td
[(U.S. Individual) -250 (Income Tax)] TJ
ET
BT
/F2 9 Tf
1 0 0 1 72 100 Tm
14 TL
(Page 1 of 2) Tj
T*
<0057> Tj
(Line \(a\) \101) '
ET
Q
`

func TestAnalyze(t *testing.T) {
	fonts := map[string]string{"F1": "Helvetica-Bold", "F2": "Times-Roman"}
	p := Analyze([]byte(sampleContent), fonts, 792, 0.15)

	assert.Contains(t, p.Text, "Form 1040")
	assert.Contains(t, p.Text, "U.S. Individual Income Tax")
	assert.Contains(t, p.Text, "Page 1 of 2")
	assert.Contains(t, p.Text, "Line (a) A")
	assert.Contains(t, p.Text, "W")

	assert.Equal(t, "Form 1040\nU.S. Individual Income Tax", p.HeaderText)

	assert.Equal(t, 8+23, p.FontHist["Helvetica-Bold"])
	assert.Equal(t, 8+1+8, p.FontHist["Times-Roman"])
}

func TestAnalyzeEmpty(t *testing.T) {
	p := Analyze(nil, nil, 792, 0.15)
	assert.Empty(t, p.Text)
	assert.Empty(t, p.HeaderText)
	assert.Empty(t, p.FontHist)
}

func TestLexer(t *testing.T) {
	lx := lexer{buf: []byte(`/Name 12.5 (a\nb\051) <48 69> [ ] << >> BI /W 1 ID xyz EI Tj % comment`)}

	var kinds []tokKind
	var strs []string
	for {
		tok, ok := lx.next()
		if !ok {
			break
		}
		kinds = append(kinds, tok.kind)
		if tok.kind == tokString || tok.kind == tokName || tok.kind == tokOperator {
			strs = append(strs, string(tok.str))
		}
	}
	require.Equal(t, []tokKind{
		tokName, tokNumber, tokString, tokString, tokArrayStart, tokArrayEnd,
		tokOther, tokOther, tokOther, tokOperator,
	}, kinds)
	assert.Equal(t, []string{"Name", "a\nb)", "Hi", "Tj"}, strs)
}

func TestStripSubsetTag(t *testing.T) {
	assert.Equal(t, "Arial-BoldMT", stripSubsetTag("ABCDEF+Arial-BoldMT"))
	assert.Equal(t, "Helvetica", stripSubsetTag("Helvetica"))
	assert.Equal(t, "A+B", stripSubsetTag("A+B"))
}

func TestNewExtractorDefaults(t *testing.T) {
	e := NewExtractor(func(o *Options) { o.HeaderTopRatio = 2 })
	assert.Equal(t, DefaultOptions.HeaderTopRatio, e.opts.HeaderTopRatio)
}
