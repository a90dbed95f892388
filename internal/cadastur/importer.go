package cadastur

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/NicolasCavalcanti/trekko-website/internal/cadastur/entity"
	"github.com/NicolasCavalcanti/trekko-website/internal/cadastur/repo"
	"github.com/NicolasCavalcanti/trekko-website/pkg/database"
)

var ErrMissingColumns = errors.New("registry file is missing the name or certificate number column")

var delimiters = []rune{',', ';', '\t', '|'}

// Header candidates, after normalizeHeader, in priority order.
var (
	nameHeaders     = []string{"NOME_COMPLETO", "NOME", "NOME_COMPLETO_DO_GUIA", "NOME_DO_GUIA"}
	numberHeaders   = []string{"NUMERO_CADASTUR", "NUMERO_DO_CADASTUR", "NUMERO_DO_CERTIFICADO", "NUMERO_CADASTRU"}
	optionalHeaders = map[string][]string{
		"uf":                   {"UF", "ESTADO"},
		"municipio":            {"MUNICIPIO", "CIDADE"},
		"telefone":             {"TELEFONE_COMERCIAL", "TELEFONE"},
		"email":                {"EMAIL_COMERCIAL", "E_MAIL_COMERCIAL", "EMAIL", "E_MAIL"},
		"website":              {"WEBSITE", "SITE"},
		"idiomas":              {"IDIOMAS", "IDIOMA"},
		"atividade":            {"ATIVIDADE_TURISTICA", "ATIVIDADE"},
		"validade":             {"VALIDADE_DO_CERTIFICADO", "VALIDADE_CERTIFICADO", "VALIDADE"},
		"municipio_de_atuacao": {"MUNICIPIO_DE_ATUACAO", "MUNICIPIOS_DE_ATUACAO"},
		"categorias":           {"CATEGORIAS", "CATEGORIA"},
		"segmentos":            {"SEGMENTOS", "SEGMENTO"},
		"guia_motorista":       {"GUIA_MOTORISTA"},
	}
)

// ImportStats summarizes one import run.
type ImportStats struct {
	Rows     int
	Imported int
	Skipped  int
}

// Importer loads the official registry CSV into guias_cadastur.
type Importer struct {
	db     *sqlx.DB
	logger *zap.SugaredLogger
}

func NewImporter(db *sqlx.DB, logger *zap.SugaredLogger) *Importer {
	return &Importer{db: db, logger: logger}
}

// Import reads a registry CSV and upserts every usable row in a single
// transaction. The delimiter is detected from the header line. Rows without
// a name or a digit-bearing number are skipped.
func (im *Importer) Import(ctx context.Context, r io.Reader) (ImportStats, error) {
	var stats ImportStats

	br := bufio.NewReader(r)
	header, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return stats, fmt.Errorf("read header: %w", err)
	}
	header = strings.TrimPrefix(header, "\ufeff")
	if strings.TrimSpace(header) == "" {
		return stats, ErrMissingColumns
	}

	cr := csv.NewReader(io.MultiReader(strings.NewReader(header), br))
	cr.Comma = detectDelimiter(header)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	rec, err := cr.Read()
	if err != nil {
		return stats, fmt.Errorf("parse header: %w", err)
	}
	cols := newColumnMap(rec)
	if cols.name < 0 || cols.number < 0 {
		return stats, ErrMissingColumns
	}

	err = database.WithTx(ctx, im.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		guides := repo.NewGuideRepo(tx)
		for {
			rec, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("parse row %d: %w", stats.Rows+2, err)
			}
			if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
				continue
			}
			stats.Rows++

			g, ok := cols.guide(rec)
			if !ok {
				stats.Skipped++
				continue
			}
			if err := guides.Upsert(ctx, g); err != nil {
				return fmt.Errorf("upsert %s: %w", g.Certificate, err)
			}
			stats.Imported++
		}
	})
	if err != nil {
		return ImportStats{}, err
	}
	im.logger.Infow("registry imported", "rows", stats.Rows, "imported", stats.Imported, "skipped", stats.Skipped)
	return stats, nil
}

func detectDelimiter(line string) rune {
	best, bestCount := ';', -1
	for _, d := range delimiters {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

var nonAlnum = regexp.MustCompile(`[^A-Z0-9]+`)

// normalizeHeader turns "Número do Certificado" into "NUMERO_DO_CERTIFICADO".
func normalizeHeader(h string) string {
	h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	h = strings.ToUpper(entity.StripDiacritics(h))
	return nonAlnum.ReplaceAllString(h, "_")
}

type columnMap struct {
	name, number int
	optional     map[string]int
}

func newColumnMap(header []string) columnMap {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}
	find := func(candidates []string) int {
		for _, c := range candidates {
			if i, ok := index[c]; ok {
				return i
			}
		}
		return -1
	}
	m := columnMap{
		name:     find(nameHeaders),
		number:   find(numberHeaders),
		optional: make(map[string]int, len(optionalHeaders)),
	}
	for field, candidates := range optionalHeaders {
		if i := find(candidates); i >= 0 {
			m.optional[field] = i
		}
	}
	return m
}

func (m columnMap) guide(rec []string) (*entity.Guide, bool) {
	at := func(i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	opt := func(field string) string {
		i, ok := m.optional[field]
		if !ok {
			return ""
		}
		return at(i)
	}

	name := strings.Join(strings.Fields(at(m.name)), " ")
	number := entity.CanonicalCertificate(at(m.number))
	if name == "" || number == "" {
		return nil, false
	}
	g := &entity.Guide{
		Certificate:           number,
		Name:                  name,
		State:                 strings.ToUpper(opt("uf")),
		Municipality:          opt("municipio"),
		Phone:                 opt("telefone"),
		Email:                 opt("email"),
		Website:               opt("website"),
		Languages:             opt("idiomas"),
		Activity:              opt("atividade"),
		OperatingMunicipality: opt("municipio_de_atuacao"),
		Categories:            opt("categorias"),
		Segments:              opt("segmentos"),
		Driver:                parseFlag(opt("guia_motorista")),
	}
	if v := opt("validade"); v != "" {
		g.ValidUntil = &v
	}
	return g, true
}

func parseFlag(v string) bool {
	switch strings.ToUpper(entity.StripDiacritics(v)) {
	case "SIM", "S", "TRUE", "1", "X", "YES", "Y":
		return true
	}
	return false
}
