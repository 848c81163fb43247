package structurer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/riskdoc/internal/model"
)

func TestBasic_NameAndSiret(t *testing.T) {
	t.Parallel()

	text := "DOCUMENT UNIQUE\nRaison sociale : ACME Industrie SAS\nSIRET : 123 456 789 00012\nAdresse : 1 rue de la Paix"
	c := Basic(text)

	assert.Equal(t, model.EngineDeterministic, c.Engine)
	assert.Equal(t, 50, c.Confidence)
	require.NotNil(t, c.Company)
	require.NotNil(t, c.Company.LegalName)
	assert.Equal(t, "ACME Industrie SAS", *c.Company.LegalName)
	require.NotNil(t, c.Company.LegalIdentifier)
	assert.Equal(t, "12345678900012", *c.Company.LegalIdentifier)
	assert.Nil(t, c.Company.Address)
	assert.Nil(t, c.Company.EmployeeCount)
	assert.Empty(t, c.WorkUnits)
	assert.Empty(t, c.Risks)
	assert.Empty(t, c.Measures)
}

func TestBasic_Labels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line string
		want string
	}{
		{"Dénomination sociale : Boulangerie Dupont", "Boulangerie Dupont"},
		{"DENOMINATION: Garage Martin", "Garage Martin"},
		{"Nom de l’entreprise : Éts Leroy", "Éts Leroy"},
		{"Société : Transports Bernard", "Transports Bernard"},
		{"  - Entreprise : Menuiserie Petit", "Menuiserie Petit"},
		{"Établissement : Clinique du Parc", "Clinique du Parc"},
		{"Company name: Acme Ltd", "Acme Ltd"},
		{"Legal Name : Foo Bar", "Foo Bar"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			c := Basic(tt.line)
			require.NotNil(t, c.Company)
			require.NotNil(t, c.Company.LegalName)
			assert.Equal(t, tt.want, *c.Company.LegalName)
		})
	}
}

func TestBasic_ValueMustStartUpperCase(t *testing.T) {
	t.Parallel()

	c := Basic("Société : voir annexe\nRaison sociale : ACME")
	require.NotNil(t, c.Company)
	assert.Equal(t, "ACME", *c.Company.LegalName)

	c = Basic("Entreprise : 12 salariés")
	assert.Nil(t, c.Company)
}

func TestBasic_UnknownLabel(t *testing.T) {
	t.Parallel()

	c := Basic("Responsable : Jean Dupont\nContact entreprise : Marie")
	assert.Nil(t, c.Company)
}

func TestBasic_SiretSeparators(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"SIRET 12345678900012",
		"siret: 123.456.789.00012",
		"N° 123-456-789-00012",
	} {
		c := Basic(in)
		require.NotNil(t, c.Company, in)
		require.NotNil(t, c.Company.LegalIdentifier, in)
		assert.Equal(t, "12345678900012", *c.Company.LegalIdentifier, in)
	}

	// 15 digits is not a SIRET.
	assert.Nil(t, Basic("123456789000123").Company)
}

func TestBasic_EmptyText(t *testing.T) {
	t.Parallel()

	c := Basic("")
	assert.Nil(t, c.Company)
	assert.Equal(t, 50, c.Confidence)
	assert.Equal(t, model.EngineDeterministic, c.Engine)
}

func TestBasic_Idempotent(t *testing.T) {
	t.Parallel()

	text := "Raison sociale : ACME\nSIRET : 123 456 789 00012"
	assert.Equal(t, Basic(text), Basic(text))
}

func TestFold(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "denomination sociale", fold("  Dénomination   Sociale "))
	assert.Equal(t, "nom de l'entreprise", fold("Nom de l’Entreprise"))
	assert.Equal(t, "etablissement", fold("ÉTABLISSEMENT"))
}
