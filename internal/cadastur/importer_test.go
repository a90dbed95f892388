package cadastur_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NicolasCavalcanti/trekko-website/internal/cadastur"
	"github.com/NicolasCavalcanti/trekko-website/internal/cadastur/repo"
	dbtest "github.com/NicolasCavalcanti/trekko-website/pkg/testutil"
)

const registryCSV = "\ufeffNúmero do Certificado;Nome Completo;UF;Município;Telefone Comercial;E-mail Comercial;Idiomas;Validade do Certificado;Guia Motorista\r\n" +
	"210.009.361-02;José  da Silva;sp;São Paulo;(11) 9999-0000;jose@example.com;Inglês, Espanhol;2030-01-31;Sim\r\n" +
	"21000936103;\"Maria; Josefina\";RJ;Paraty;;;;-;Não\r\n" +
	";Sem Número;MG;Ouro Preto;;;;;\r\n" +
	"abc;Sem Dígitos;MG;Ouro Preto;;;;;\r\n" +
	"21000936104;;MG;Ouro Preto;;;;;\r\n" +
	"\r\n"

func TestImport(t *testing.T) {
	ctx := context.Background()
	db := dbtest.NewSQLiteDB(t)
	im := cadastur.NewImporter(db, zap.NewNop().Sugar())

	stats, err := im.Import(ctx, strings.NewReader(registryCSV))
	require.NoError(t, err)
	assert.Equal(t, cadastur.ImportStats{Rows: 5, Imported: 2, Skipped: 3}, stats)

	guides := repo.NewGuideRepo(db)
	g, err := guides.FindByCertificate(ctx, "21000936102")
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, "José da Silva", g.Name)
	assert.Equal(t, "SP", g.State)
	assert.Equal(t, "São Paulo", g.Municipality)
	assert.Equal(t, "jose@example.com", g.Email)
	assert.Equal(t, "Inglês, Espanhol", g.Languages)
	assert.True(t, g.Driver)
	require.NotNil(t, g.ValidUntil)
	assert.Equal(t, "2030-01-31", *g.ValidUntil)

	g, err = guides.FindByCertificate(ctx, "21000936103")
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, "Maria; Josefina", g.Name)
	assert.False(t, g.Driver)

	// a second run updates in place
	stats, err = im.Import(ctx, strings.NewReader(strings.Replace(registryCSV, "Paraty", "Angra dos Reis", 1)))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Imported)
	g, err = guides.FindByCertificate(ctx, "21000936103")
	require.NoError(t, err)
	assert.Equal(t, "Angra dos Reis", g.Municipality)
}

func TestImportCommaDelimited(t *testing.T) {
	db := dbtest.NewSQLiteDB(t)
	csv := "NOME,NUMERO_CADASTUR,UF\nAna Souza,123456,BA\n"

	stats, err := cadastur.NewImporter(db, zap.NewNop().Sugar()).Import(context.Background(), strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Imported)

	g, err := repo.NewGuideRepo(db).FindByCertificate(context.Background(), "123456")
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, "Ana Souza", g.Name)
	assert.Equal(t, "BA", g.State)
	assert.Nil(t, g.ValidUntil)
}

func TestImportMissingColumns(t *testing.T) {
	db := dbtest.NewSQLiteDB(t)
	im := cadastur.NewImporter(db, zap.NewNop().Sugar())

	_, err := im.Import(context.Background(), strings.NewReader("NOME;UF\nAna;BA\n"))
	assert.ErrorIs(t, err, cadastur.ErrMissingColumns)

	_, err = im.Import(context.Background(), strings.NewReader(""))
	assert.ErrorIs(t, err, cadastur.ErrMissingColumns)
}
