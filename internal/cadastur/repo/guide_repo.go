package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"

	"github.com/NicolasCavalcanti/trekko-website/internal/cadastur/entity"
)

const (
	// DefaultSearchLimit applies when the caller passes no positive limit.
	DefaultSearchLimit = 10
	// MaxSearchLimit caps every search regardless of what the caller asks.
	MaxSearchLimit = 50
	// MinNameQueryLen guards against scanning the whole registry for "a".
	MinNameQueryLen = 3
)

const guideColumns = `numero_do_certificado, nome_completo, uf, municipio,
	telefone_comercial, email_comercial, website, idiomas, atividade_turistica,
	validade_do_certificado, municipio_de_atuacao, categorias, segmentos, guia_motorista`

// GuideRepo provides read access to the guias_cadastur registry table, plus
// the upsert used by the importer. It works on a *sqlx.DB or a *sqlx.Tx.
type GuideRepo struct {
	db sqlx.ExtContext
}

func NewGuideRepo(db sqlx.ExtContext) *GuideRepo { return &GuideRepo{db: db} }

// FindByCertificate returns the registry entry for raw (any formatting), or
// nil when the number has no digits or is unknown. Duplicate rows are
// tolerated: the first one wins.
func (r *GuideRepo) FindByCertificate(ctx context.Context, raw string) (*entity.Guide, error) {
	canonical := entity.CanonicalCertificate(raw)
	if canonical == "" {
		return nil, nil
	}
	q := r.db.Rebind(`SELECT ` + guideColumns + ` FROM guias_cadastur WHERE numero_do_certificado = ? LIMIT 1`)
	var g entity.Guide
	if err := sqlx.GetContext(ctx, r.db, &g, q, canonical); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &g, nil
}

type claimRow struct {
	entity.Guide
	ClaimantID    sql.NullInt64  `db:"claimant_id"`
	ClaimantEmail sql.NullString `db:"claimant_email"`
}

// FindWithClaimant looks up the registry entry and the active user holding
// its certificate in a single query, so existence and availability are read
// from the same snapshot. Returns nil when the entry does not exist.
func (r *GuideRepo) FindWithClaimant(ctx context.Context, raw string) (*entity.GuideClaim, error) {
	canonical := entity.CanonicalCertificate(raw)
	if canonical == "" {
		return nil, nil
	}
	q := r.db.Rebind(`SELECT g.numero_do_certificado, g.nome_completo, g.uf, g.municipio,
		g.telefone_comercial, g.email_comercial, g.website, g.idiomas, g.atividade_turistica,
		g.validade_do_certificado, g.municipio_de_atuacao, g.categorias, g.segmentos, g.guia_motorista,
		u.id AS claimant_id, u.email AS claimant_email
	  FROM guias_cadastur g
	  LEFT JOIN users u ON u.cadastur_number = g.numero_do_certificado AND u.is_active
	 WHERE g.numero_do_certificado = ?
	 LIMIT 1`)
	var row claimRow
	if err := sqlx.GetContext(ctx, r.db, &row, q, canonical); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	claim := &entity.GuideClaim{Guide: row.Guide}
	if row.ClaimantID.Valid {
		id := row.ClaimantID.Int64
		claim.ClaimantID = &id
	}
	if row.ClaimantEmail.Valid {
		email := row.ClaimantEmail.String
		claim.ClaimantEmail = &email
	}
	return claim, nil
}

// SearchByName does a case- and accent-insensitive substring match on the
// full name. Queries shorter than MinNameQueryLen runes return nothing.
func (r *GuideRepo) SearchByName(ctx context.Context, namePart string, limit int) ([]entity.Guide, error) {
	namePart = strings.TrimSpace(namePart)
	if utf8.RuneCountInString(namePart) < MinNameQueryLen {
		return []entity.Guide{}, nil
	}
	q := r.db.Rebind(`SELECT ` + guideColumns + ` FROM guias_cadastur
	 WHERE nome_busca LIKE ? ESCAPE '\'
	 ORDER BY nome_completo
	 LIMIT ?`)
	out := []entity.Guide{}
	if err := sqlx.SelectContext(ctx, r.db, &out, q, likePattern(entity.NormalizeName(namePart)), ClampLimit(limit)); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchByLocation filters by state code (exact, case-insensitive) and/or
// municipality (substring, case- and accent-insensitive). With neither filter set it
// returns nothing.
func (r *GuideRepo) SearchByLocation(ctx context.Context, state, municipality string, limit int) ([]entity.Guide, error) {
	state = strings.TrimSpace(state)
	municipality = strings.TrimSpace(municipality)
	if state == "" && municipality == "" {
		return []entity.Guide{}, nil
	}

	var where []string
	var args []any
	if state != "" {
		where = append(where, `UPPER(uf) = ?`)
		args = append(args, strings.ToUpper(state))
	}
	if municipality != "" {
		where = append(where, `municipio_busca LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(entity.NormalizeName(municipality)))
	}
	args = append(args, ClampLimit(limit))

	q := r.db.Rebind(`SELECT ` + guideColumns + ` FROM guias_cadastur WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY nome_completo LIMIT ?`)
	out := []entity.Guide{}
	if err := sqlx.SelectContext(ctx, r.db, &out, q, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// searchRow adds the folded search keys stored next to each entry.
type searchRow struct {
	entity.Guide
	NameKey         string `db:"nome_busca"`
	MunicipalityKey string `db:"municipio_busca"`
}

// Upsert inserts or replaces a registry entry keyed by its canonical
// certificate number.
func (r *GuideRepo) Upsert(ctx context.Context, g *entity.Guide) error {
	g.Certificate = entity.CanonicalCertificate(g.Certificate)
	row := searchRow{
		Guide:           *g,
		NameKey:         entity.NormalizeName(g.Name),
		MunicipalityKey: entity.NormalizeName(g.Municipality),
	}
	const q = `INSERT INTO guias_cadastur (` + guideColumns + `, nome_busca, municipio_busca)
	VALUES (:numero_do_certificado, :nome_completo, :uf, :municipio,
		:telefone_comercial, :email_comercial, :website, :idiomas, :atividade_turistica,
		:validade_do_certificado, :municipio_de_atuacao, :categorias, :segmentos, :guia_motorista,
		:nome_busca, :municipio_busca)
	ON CONFLICT (numero_do_certificado) DO UPDATE SET
		nome_completo = excluded.nome_completo,
		uf = excluded.uf,
		municipio = excluded.municipio,
		telefone_comercial = excluded.telefone_comercial,
		email_comercial = excluded.email_comercial,
		website = excluded.website,
		idiomas = excluded.idiomas,
		atividade_turistica = excluded.atividade_turistica,
		validade_do_certificado = excluded.validade_do_certificado,
		municipio_de_atuacao = excluded.municipio_de_atuacao,
		categorias = excluded.categorias,
		segmentos = excluded.segmentos,
		guia_motorista = excluded.guia_motorista,
		nome_busca = excluded.nome_busca,
		municipio_busca = excluded.municipio_busca`
	_, err := sqlx.NamedExecContext(ctx, r.db, q, row)
	return err
}

// ClampLimit maps non-positive limits to DefaultSearchLimit and caps the
// rest at MaxSearchLimit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultSearchLimit
	case limit > MaxSearchLimit:
		return MaxSearchLimit
	default:
		return limit
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern expects an already folded query.
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
