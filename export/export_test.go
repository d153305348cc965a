package export_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/scheme-engine/costing"
	"github.com/warp/scheme-engine/export"
	"github.com/warp/scheme-engine/loader"
	"github.com/warp/scheme-engine/store/memory"
	"github.com/warp/scheme-engine/store/seed"
)

func demoTable(t *testing.T) *costing.Table {
	t.Helper()
	st := memory.New()
	require.NoError(t, seed.Demo(context.Background(), st))
	cfg, fr, err := loader.New(st, nil).Load(context.Background(), seed.DemoSchemeID)
	require.NoError(t, err)
	tbl, err := costing.NewEngine(nil, nil).Compute(context.Background(), cfg, fr, costing.Options{})
	require.NoError(t, err)
	return tbl
}

func columnOf(t *testing.T, tbl *costing.Table, label string) string {
	t.Helper()
	for i, l := range tbl.Labels() {
		if l == label {
			name, err := excelize.ColumnNumberToName(i + 1)
			require.NoError(t, err)
			return name
		}
	}
	t.Fatalf("no column %q", label)
	return ""
}

func TestWriteXLSX(t *testing.T) {
	// GIVEN: The demo costing table
	// WHEN: Writing it as a workbook
	// THEN: Headers, account rows and the GRAND TOTAL row land in order

	tbl := demoTable(t)
	var buf bytes.Buffer

	require.NoError(t, export.WriteXLSX(&buf, tbl, ""))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(export.DefaultSheet)
	require.NoError(t, err)
	require.Len(t, rows, tbl.Len()+1)
	assert.Equal(t, tbl.Labels()[0], rows[0][0])
	assert.Equal(t, "A100", rows[1][0])
	assert.Equal(t, costing.GrandTotalLabel, rows[3][0])

	total := columnOf(t, tbl, costing.LabelTotalPayout)
	v, err := f.GetCellValue(export.DefaultSheet, total+"4")
	require.NoError(t, err)
	assert.Equal(t, "4200", v)

	// Open-ended slab end is blank.
	end := columnOf(t, tbl, costing.LabelSlabEnd)
	v, err = f.GetCellValue(export.DefaultSheet, end+"3")
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

type capturePutter struct {
	input *s3.PutObjectInput
	body  []byte
}

func (c *capturePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	c.input = in
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	c.body = b
	return &s3.PutObjectOutput{}, nil
}

func TestS3Sink_Put(t *testing.T) {
	putter := &capturePutter{}
	sink := &export.S3Sink{Client: putter, Bucket: "exports", Prefix: "costing"}

	key, err := sink.Put(context.Background(), "DEMO/main_volume.xlsx", demoTable(t))

	require.NoError(t, err)
	assert.Equal(t, "costing/DEMO/main_volume.xlsx", key)
	assert.Equal(t, "exports", aws.ToString(putter.input.Bucket))
	assert.Equal(t, export.ContentType, aws.ToString(putter.input.ContentType))
	assert.Equal(t, int64(len(putter.body)), aws.ToInt64(putter.input.ContentLength))

	f, err := excelize.OpenReader(bytes.NewReader(putter.body))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{export.DefaultSheet}, f.GetSheetList())
}
