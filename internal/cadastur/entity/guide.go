package entity

// Guide is one row of the official CADASTUR registry (guias_cadastur).
// The registry is reference data loaded by the importer; the service only
// reads it. JSON tags are the guide_info wire format.
type Guide struct {
	Certificate           string  `db:"numero_do_certificado" json:"numero_certificado"`
	Name                  string  `db:"nome_completo" json:"nome_completo"`
	State                 string  `db:"uf" json:"uf"`
	Municipality          string  `db:"municipio" json:"municipio"`
	Phone                 string  `db:"telefone_comercial" json:"telefone"`
	Email                 string  `db:"email_comercial" json:"email"`
	Website               string  `db:"website" json:"website"`
	Languages             string  `db:"idiomas" json:"idiomas"`
	Activity              string  `db:"atividade_turistica" json:"atividade"`
	ValidUntil            *string `db:"validade_do_certificado" json:"validade_certificado"`
	OperatingMunicipality string  `db:"municipio_de_atuacao" json:"municipio_atuacao"`
	Categories            string  `db:"categorias" json:"categorias"`
	Segments              string  `db:"segmentos" json:"segmentos"`
	Driver                bool    `db:"guia_motorista" json:"guia_motorista"`
}

// GuideClaim is a registry entry together with the active user currently
// holding its certificate, if any.
type GuideClaim struct {
	Guide         Guide
	ClaimantID    *int64
	ClaimantEmail *string
}

// Claimed reports whether an active user already holds the certificate.
func (c *GuideClaim) Claimed() bool {
	return c.ClaimantID != nil
}
