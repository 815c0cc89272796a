package bill_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/lifetag/lifetag-backend/internal/pharmacy/bill"
)

func TestParseCSV_HeaderMapping(t *testing.T) {
	data := []byte(
		"Medicine Name,Batch No,Expiry,Quantity,MRP,Manufacturer\n" +
			"Paracetamol,B1,Jan-27,10,25.50,Acme Pharma\n" +
			"Ibuprofen,B2,2027-03-01,4,40.00,Beta Labs\n")

	entries, err := bill.Parse(data, "csv")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "Paracetamol", entries[0].ProductName)
	assert.Equal(t, "B1", entries[0].Batch)
	assert.Equal(t, "Jan-27", entries[0].Exp)
	assert.Equal(t, 10, entries[0].Qty)
	assert.Equal(t, "25.50", entries[0].MRP)
	assert.Equal(t, "Acme Pharma", entries[0].Manufacturer)

	assert.Equal(t, "Ibuprofen", entries[1].ProductName)
	assert.Equal(t, 4, entries[1].Qty)
}

func TestParseCSV_PositionalFallback(t *testing.T) {
	// No recognizable header: first row is data in the default column order.
	data := []byte(
		"Paracetamol,3004,25.50,B1,Jan-27,10,Acme Pharma,20.00,8901234567890\n" +
			"Ibuprofen,3004,40.00,B2,2027-03-01,4,Beta Labs,32.00,\n")

	entries, err := bill.Parse(data, "csv")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "Paracetamol", entries[0].ProductName)
	assert.Equal(t, "3004", entries[0].HSN)
	assert.Equal(t, "B1", entries[0].Batch)
	assert.Equal(t, 10, entries[0].Qty)
	assert.Equal(t, "8901234567890", entries[0].GTIN)
}

func TestParseCSV_DropsUnusableRows(t *testing.T) {
	data := []byte(
		"product_name,batch,exp,qty\n" +
			"Paracetamol,B1,Jan-27,10\n" +
			",,Jan-27,5\n" + // no product or batch
			"Ibuprofen,B2,2027-03-01,two\n" + // non-numeric qty
			",,,\n" + // blank line
			"Aspirin,B3,Mar-27,7\n")

	entries, err := bill.Parse(data, "csv")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Paracetamol", entries[0].ProductName)
	assert.Equal(t, "Aspirin", entries[1].ProductName)
}

func TestParseCSV_RaggedRows(t *testing.T) {
	// Short rows read as empty cells rather than erroring out.
	data := []byte(
		"product_name,batch,exp,qty,manufacturer\n" +
			"Paracetamol,B1,Jan-27,10\n")

	entries, err := bill.Parse(data, "csv")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "", entries[0].Manufacturer)
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"Item Name", "Batch", "Exp Date", "Qty", "Rate"},
		{"Paracetamol", "B1", "Jan-27", 10, "20.00"},
		{"Ibuprofen", "B2", "2027-03-01", 4, "32.00"},
	}
	for i, row := range rows {
		addr, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, addr, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	entries, err := bill.Parse(buf.Bytes(), "xlsx")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Paracetamol", entries[0].ProductName)
	assert.Equal(t, "B1", entries[0].Batch)
	assert.Equal(t, 10, entries[0].Qty)
	assert.Equal(t, "20.00", entries[0].Rate)
}

func TestParse_UnsupportedFormat(t *testing.T) {
	_, err := bill.Parse([]byte("x"), "pdf")
	require.Error(t, err)
}

func TestParse_EmptyInput(t *testing.T) {
	entries, err := bill.Parse(nil, "csv")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
