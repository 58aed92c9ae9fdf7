package detection

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/resper1965/ncrisis-sub000/internal/core/domain"
)

func newTestEngine() *Engine {
	return NewEngine(60, DefaultPolicy())
}

func detectionsOfType(dets []domain.Detection, t domain.DocumentType) []domain.Detection {
	var out []domain.Detection
	for _, d := range dets {
		if d.DocType == t {
			out = append(out, d)
		}
	}
	return out
}

func TestDetectValidCPF(t *testing.T) {
	engine := newTestEngine()
	text := "Funcionária: Maria Silva, CPF: 111.444.777-35, admitida em 2024."

	dets := detectionsOfType(engine.Detect(text, "cadastro.txt"), domain.DocTypeCPF)
	if len(dets) != 1 {
		t.Fatalf("got %d cpf detections, want 1", len(dets))
	}

	d := dets[0]
	if d.Value != "111.444.777-35" {
		t.Errorf("Value = %q, want 111.444.777-35", d.Value)
	}
	if d.Subject != "Maria Silva" {
		t.Errorf("Subject = %q, want Maria Silva", d.Subject)
	}
	if d.Risk != domain.RiskHigh {
		t.Errorf("Risk = %v, want high", d.Risk)
	}
	if d.Offset != strings.Index(text, "111.444.777-35") {
		t.Errorf("Offset = %d, want %d", d.Offset, strings.Index(text, "111.444.777-35"))
	}
	if !strings.Contains(d.Context, d.Value) {
		t.Errorf("context %q does not contain the match", d.Context)
	}
}

func TestDetectDiscardsInvalidChecksum(t *testing.T) {
	engine := newTestEngine()
	text := "CPF: 111.444.777-34 e CNPJ 11.222.333/0001-82 constam no cadastro."

	dets := engine.Detect(text, "cadastro.txt")
	if cpfs := detectionsOfType(dets, domain.DocTypeCPF); len(cpfs) != 0 {
		t.Errorf("got %d cpf detections for invalid checksum, want 0", len(cpfs))
	}
	if cnpjs := detectionsOfType(dets, domain.DocTypeCNPJ); len(cnpjs) != 0 {
		t.Errorf("got %d cnpj detections for invalid checksum, want 0", len(cnpjs))
	}
}

func TestDetectKeywordEscalation(t *testing.T) {
	engine := newTestEngine()
	text := "dados confidencial: CPF 111.444.777-35"

	dets := detectionsOfType(engine.Detect(text, "notas.txt"), domain.DocTypeCPF)
	if len(dets) != 1 {
		t.Fatalf("got %d cpf detections, want 1", len(dets))
	}
	if dets[0].Risk != domain.RiskCritical {
		t.Errorf("Risk = %v, want critical after keyword escalation", dets[0].Risk)
	}
}

func TestDetectFilenameEscalation(t *testing.T) {
	engine := newTestEngine()
	text := "CPF 111.444.777-35"

	dets := detectionsOfType(engine.Detect(text, "backup_clientes.txt"), domain.DocTypeCPF)
	if len(dets) != 1 {
		t.Fatalf("got %d cpf detections, want 1", len(dets))
	}
	if dets[0].Risk != domain.RiskCritical {
		t.Errorf("Risk = %v, want critical for sensitive filename", dets[0].Risk)
	}
}

func TestDetectRGRequiresLabel(t *testing.T) {
	engine := newTestEngine()

	labeled := detectionsOfType(engine.Detect("RG: 12.345.678-9", "doc.txt"), domain.DocTypeRG)
	if len(labeled) != 1 {
		t.Fatalf("got %d rg detections with label, want 1", len(labeled))
	}
	if labeled[0].Value != "12.345.678-9" {
		t.Errorf("Value = %q, want the captured number", labeled[0].Value)
	}

	unlabeled := detectionsOfType(engine.Detect("numero 12.345.678-9 avulso", "doc.txt"), domain.DocTypeRG)
	if len(unlabeled) != 0 {
		t.Errorf("got %d rg detections without label, want 0", len(unlabeled))
	}
}

func TestDetectEmailAndPhone(t *testing.T) {
	engine := newTestEngine()
	text := "Contato: joao.souza@empresa.com.br, telefone (11) 98765-4321."

	dets := engine.Detect(text, "contatos.txt")
	if emails := detectionsOfType(dets, domain.DocTypeEmail); len(emails) != 1 {
		t.Errorf("got %d email detections, want 1", len(emails))
	}
	if phones := detectionsOfType(dets, domain.DocTypePhone); len(phones) != 1 {
		t.Errorf("got %d phone detections, want 1", len(phones))
	}
}

func TestDetectCEPBaselineLow(t *testing.T) {
	engine := newTestEngine()

	dets := detectionsOfType(engine.Detect("Endereço: Av. Paulista, CEP 01310-100", "end.txt"), domain.DocTypeCEP)
	if len(dets) != 1 {
		t.Fatalf("got %d cep detections, want 1", len(dets))
	}
	if dets[0].Risk != domain.RiskLow {
		t.Errorf("Risk = %v, want low", dets[0].Risk)
	}
}

func TestDetectSubjectFallback(t *testing.T) {
	engine := newTestEngine()

	dets := detectionsOfType(engine.Detect("cpf 111.444.777-35 sem titular por perto", "x.txt"), domain.DocTypeCPF)
	if len(dets) != 1 {
		t.Fatalf("got %d cpf detections, want 1", len(dets))
	}
	if dets[0].Subject != unknownSubject {
		t.Errorf("Subject = %q, want %q", dets[0].Subject, unknownSubject)
	}
}

func TestDetectDeterministic(t *testing.T) {
	engine := newTestEngine()
	text := "Maria Silva, CPF 111.444.777-35, email maria@ex.com.br, CEP 01310-100."

	first := engine.Detect(text, "dados.txt")
	second := engine.Detect(text, "dados.txt")
	if !reflect.DeepEqual(first, second) {
		t.Errorf("identical input produced different detections")
	}
	if len(first) == 0 {
		t.Errorf("expected detections for mixed pii text")
	}
}

func TestContextWindowRespectsRadius(t *testing.T) {
	engine := NewEngine(10, DefaultPolicy())
	pad := strings.Repeat("a", 200)
	text := pad + " 111.444.777-35 " + pad

	dets := detectionsOfType(engine.Detect(text, "x.txt"), domain.DocTypeCPF)
	if len(dets) != 1 {
		t.Fatalf("got %d cpf detections, want 1", len(dets))
	}
	maxWindow := utf8.RuneCountInString("111.444.777-35") + 2*10
	if got := utf8.RuneCountInString(dets[0].Context); got > maxWindow {
		t.Errorf("context window %d runes, want at most %d", got, maxWindow)
	}
}

func TestContextWindowCountsRunes(t *testing.T) {
	engine := newTestEngine()
	// "X" sits exactly 60 runes before the match but 114 bytes back; a
	// byte-measured window would cut it off.
	text := "X" + strings.Repeat("é", 54) + " CPF 111.444.777-35"

	dets := detectionsOfType(engine.Detect(text, "acentos.txt"), domain.DocTypeCPF)
	if len(dets) != 1 {
		t.Fatalf("got %d cpf detections, want 1", len(dets))
	}
	if !strings.Contains(dets[0].Context, "X") {
		t.Errorf("context %q misses text 60 runes before the match", dets[0].Context)
	}
	if !utf8.ValidString(dets[0].Context) {
		t.Errorf("context window split a multibyte rune")
	}
}
