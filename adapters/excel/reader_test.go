package excel

import (
	"bytes"
	"strings"
	"testing"

	"tablefix/domain/table"
	"tablefix/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const sampleCSV = "Column1,Column2,Column3,Flag\n" +
	"10,A,100,True\n" +
	"20,B,,False\n" +
	"5.5,C,300,true\n"

func TestReadTableCSV(t *testing.T) {
	r := NewDataReader(nil)

	tbl, err := r.ReadTable("data.csv", strings.NewReader(sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, []string{"Column1", "Column2", "Column3", "Flag"}, tbl.Columns)
	require.Equal(t, 3, tbl.Len())
	assert.Equal(t, table.Number(10), tbl.Rows[0]["Column1"])
	assert.Equal(t, table.String("B"), tbl.Rows[1]["Column2"])
	assert.True(t, tbl.Rows[1]["Column3"].IsNull())
	assert.Equal(t, table.Number(5.5), tbl.Rows[2]["Column1"])
	assert.Equal(t, table.Bool(true), tbl.Rows[2]["Flag"])
}

func TestReadTableCSVHeaderHandling(t *testing.T) {
	r := NewDataReader(nil)

	tbl, err := r.ReadTable("x.CSV", strings.NewReader("\xef\xbb\xbfa, ,a\n1,2,3\n4\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "Unnamed: 1", "a.1"}, tbl.Columns)
	assert.True(t, tbl.Rows[1]["a.1"].IsNull())
}

func TestReadTableKeepsPaddedStrings(t *testing.T) {
	tbl, err := NewDataReader(nil).ReadTable("x.csv", strings.NewReader("name,age\n  Carol , 30 \n a,41\na,52\n"))
	require.NoError(t, err)

	assert.Equal(t, table.String("  Carol "), tbl.Rows[0]["name"])
	assert.Equal(t, table.String(" a"), tbl.Rows[1]["name"])
	assert.Equal(t, table.String("a"), tbl.Rows[2]["name"])
	assert.Equal(t, table.Number(30), tbl.Rows[0]["age"])
}

func TestReadTableHeaderOnly(t *testing.T) {
	tbl, err := NewDataReader(nil).ReadTable("x.csv", strings.NewReader("a,b\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.Len())
	assert.Equal(t, []string{"a", "b"}, tbl.Columns)
}

func TestReadTableErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"unsupported extension", "data.txt", "a,b\n1,2\n"},
		{"empty csv", "data.csv", ""},
		{"too many fields", "data.csv", "a,b\n1,2,3\n"},
		{"bad quoting", "data.csv", "a,b\n\"1,2\n"},
		{"not a workbook", "data.xlsx", "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDataReader(nil).ReadTable(tt.file, strings.NewReader(tt.body))
			require.Error(t, err)
			assert.Equal(t, errors.CodeParseError, errors.GetCode(err))
		})
	}
}

func TestReadTableXLSXFirstSheet(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"name", "score"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"ann", 3}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]interface{}{"bob", 4.5}))
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)

	tbl, err := NewDataReader(nil).ReadTable("book.xlsx", &buf)
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "score"}, tbl.Columns)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, table.String("ann"), tbl.Rows[0]["name"])
	assert.Equal(t, table.Number(4.5), tbl.Rows[1]["score"])
}
