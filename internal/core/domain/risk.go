package domain

import "strings"

// BaselineRisk is the decision table keyed by document type. The rule-based
// enhancement fallback uses the same table, so the two paths never disagree
// on the floor level.
func BaselineRisk(t DocumentType) RiskLevel {
	switch t {
	case DocTypeCPF, DocTypeRG:
		return RiskHigh
	case DocTypeCNPJ, DocTypeEmail, DocTypePhone, DocTypeFullName:
		return RiskMedium
	case DocTypeCEP:
		return RiskLow
	default:
		return RiskLow
	}
}

// DefaultSensitivityKeywords escalate risk when found in a filename or
// context window. Portuguese first; the policy file can replace the list.
var DefaultSensitivityKeywords = []string{
	"confidencial",
	"confidential",
	"sigiloso",
	"senha",
	"password",
	"backup",
	"export",
	"dump",
	"privado",
	"folha de pagamento",
	"rh",
}

// SensitiveContext reports whether filename or context carries any of the
// configured sensitivity keywords (case-insensitive).
func SensitiveContext(filename, context string, keywords []string) bool {
	haystack := strings.ToLower(filename + " " + context)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// FallbackRecommendations is the canned per-type remediation list used when
// the external classifier is unavailable.
func FallbackRecommendations(t DocumentType) []string {
	switch t {
	case DocTypeCPF:
		return []string{
			"Mascarar o CPF em exibições e relatórios",
			"Restringir acesso ao arquivo de origem",
			"Registrar base legal para tratamento (LGPD art. 7)",
		}
	case DocTypeCNPJ:
		return []string{
			"Verificar necessidade de retenção do CNPJ",
			"Limitar acesso a dados cadastrais de terceiros",
		}
	case DocTypeRG:
		return []string{
			"Criptografar documentos de identidade em repouso",
			"Restringir acesso ao arquivo de origem",
		}
	case DocTypeCEP:
		return []string{
			"Avaliar se o endereço é necessário para a finalidade declarada",
		}
	case DocTypeEmail:
		return []string{
			"Evitar exportação de e-mails em texto claro",
			"Aplicar minimização de dados de contato",
		}
	case DocTypePhone:
		return []string{
			"Evitar exportação de telefones em texto claro",
			"Aplicar minimização de dados de contato",
		}
	case DocTypeFullName:
		return []string{
			"Pseudonimizar nomes quando possível",
		}
	default:
		return []string{"Revisar manualmente a ocorrência"}
	}
}
