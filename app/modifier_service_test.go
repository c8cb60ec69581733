package app

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"tablefix/adapters/excel"
	"tablefix/domain/modifier"
	"tablefix/domain/table"
	"tablefix/internal/errors"
	"tablefix/internal/logging"
	"tablefix/internal/session"
	"tablefix/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const salesCSV = "Column1,Column2,Column3\n" +
	"5,a,x\n" +
	"15,b,y\n" +
	"15,b,y\n" +
	"25,c,z\n"

type mockBlobStore struct {
	mock.Mock
	stored bytes.Buffer
}

func (m *mockBlobStore) StoreBlob(ctx context.Context, key, contentType string, data io.Reader) error {
	_, _ = io.Copy(&m.stored, data)
	return m.Called(key, contentType).Error(0)
}

func (m *mockBlobStore) GetBlob(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(key)
	if rc, ok := args.Get(0).(io.ReadCloser); ok {
		return rc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBlobStore) BlobExists(ctx context.Context, key string) (bool, error) {
	args := m.Called(key)
	return args.Bool(0), args.Error(1)
}

func (m *mockBlobStore) GetBlobMetadata(ctx context.Context, key string) (*ports.BlobMetadata, error) {
	args := m.Called(key)
	if meta, ok := args.Get(0).(*ports.BlobMetadata); ok {
		return meta, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBlobStore) Location(key string) string {
	return "mem://" + key
}

func (m *mockBlobStore) Provider() ports.StorageProvider {
	return ports.StorageLocal
}

func newTestService(t *testing.T, blobs ports.BlobStore) *ModifierService {
	t.Helper()
	logger := logging.Discard()
	store := session.NewStore(time.Hour, session.WithLogger(logger),
		session.WithModifierFactory(func() *modifier.Modifier {
			return modifier.New(modifier.WithLogger(logger))
		}))
	return NewModifierService(store, excel.NewDataReader(logger), blobs, 1024, logger)
}

func upload(t *testing.T, svc *ModifierService) *Snapshot {
	t.Helper()
	snap, err := svc.Upload(context.Background(), "", "sales.csv", strings.NewReader(salesCSV))
	require.NoError(t, err)
	return snap
}

func TestUploadCreatesSession(t *testing.T) {
	svc := newTestService(t, nil)
	snap := upload(t, svc)

	assert.NotEmpty(t, snap.SessionID)
	assert.Equal(t, "sales.csv", snap.FileName)
	assert.Equal(t, []string{"Column1", "Column2", "Column3"}, snap.Table.Columns)
	assert.Equal(t, 4, snap.Table.Len())
	assert.Empty(t, snap.Log)
}

func TestUploadReusesSessionAndResetsLog(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)
	snap := upload(t, svc)

	_, err := svc.RemoveDuplicates(ctx, snap.SessionID)
	require.NoError(t, err)

	again, err := svc.Upload(ctx, snap.SessionID, `C:\data\other.csv`, strings.NewReader("a\n1\n"))
	require.NoError(t, err)
	assert.Equal(t, snap.SessionID, again.SessionID)
	assert.Equal(t, "other.csv", again.FileName)

	entries, err := svc.Log(ctx, snap.SessionID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadFailureKeepsExistingTable(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)
	snap := upload(t, svc)

	_, err := svc.Upload(ctx, snap.SessionID, "notes.txt", strings.NewReader("x"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeParseError, errors.GetCode(err))

	current, err := svc.Snapshot(ctx, snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "sales.csv", current.FileName)
	assert.Equal(t, 4, current.Table.Len())
}

func TestUploadTooLarge(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := svc.Upload(context.Background(), "", "big.csv", strings.NewReader(strings.Repeat("a\n", 1024)))
	require.Error(t, err)
	assert.Equal(t, errors.CodeTooLarge, errors.GetCode(err))
}

func TestRunSequence(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)
	id := upload(t, svc).SessionID

	snap, err := svc.Run(ctx, id, modifier.ActionRemoveDuplicates, "")
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Table.Len())

	snap, err = svc.Run(ctx, id, modifier.ActionApplyRules, `[{"column": "Column1", "condition": "greater_than", "value": 10}]`)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Table.Len())

	snap, err = svc.Run(ctx, id, modifier.ActionAddOrDeleteRows,
		`[{"action": "add", "row_data": {"Column1": 30, "Column2": "d", "Column3": "w"}}, {"action": "delete", "index": 0}]`)
	require.NoError(t, err)
	require.Equal(t, 2, snap.Table.Len())
	assert.Equal(t, table.Number(25), snap.Table.Rows[0].Get("Column1"))
	assert.Equal(t, table.Number(30), snap.Table.Rows[1].Get("Column1"))

	entries, err := svc.Log(ctx, id)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "Removed 1 duplicate rows.", entries[0].Details)
	assert.Equal(t, `Applied rules: [{"column": "Column1", "condition": "greater_than", "value": 10}]. Remaining rows: 2`, entries[1].Details)
	assert.Equal(t, modifier.ActionAddOrDeleteRows, entries[2].Action)
}

func TestRunUnknownOperation(t *testing.T) {
	svc := newTestService(t, nil)
	id := upload(t, svc).SessionID

	_, err := svc.Run(context.Background(), id, "explode", "")
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestFailedOperationsLeaveTableUnchanged(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)
	id := upload(t, svc).SessionID

	tests := []struct {
		name string
		run  func() error
		code string
	}{
		{"bad rules json", func() error {
			_, err := svc.ApplyRules(ctx, id, `{not json`)
			return err
		}, errors.CodeParseError},
		{"missing column", func() error {
			_, err := svc.ApplyRules(ctx, id, `[{"column": "Nope", "condition": "equals", "value": 1}]`)
			return err
		}, errors.CodeRuleEvaluation},
		{"bad operation", func() error {
			_, err := svc.AddOrDeleteRows(ctx, id, `[{"action": "delete", "index": 0}, {"action": "move"}]`)
			return err
		}, errors.CodeOperationFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))

			snap, err := svc.Snapshot(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, 4, snap.Table.Len())
			assert.Empty(t, snap.Log)
		})
	}
}

func TestPanicIsRecovered(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)
	id := upload(t, svc).SessionID

	_, err := svc.modify(id, "boom", func(*modifier.Modifier, *table.Table) (*table.Table, error) {
		panic("unexpected")
	})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInternalError, errors.GetCode(err))

	snap, err := svc.Snapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 4, snap.Table.Len())
}

func TestUnknownSessionAndNoFile(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)

	_, err := svc.RemoveDuplicates(ctx, "missing")
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))

	_, err = svc.ApplyRules(ctx, "missing", `[]`)
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))

	empty := svc.sessions.Create()
	_, err = svc.Log(ctx, empty.ID)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestExports(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)
	id := upload(t, svc).SessionID

	var csvBuf bytes.Buffer
	require.NoError(t, svc.ExportCSV(ctx, id, &csvBuf))
	assert.Equal(t, salesCSV, csvBuf.String())

	var xlsxBuf bytes.Buffer
	require.NoError(t, svc.ExportXLSX(ctx, id, &xlsxBuf))
	assert.NotZero(t, xlsxBuf.Len())

	md, err := svc.Report(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, string(md), "- Rows: 4")

	profiles, err := svc.Profile(ctx, id)
	require.NoError(t, err)
	require.Len(t, profiles, 3)
	assert.Equal(t, "number", profiles[0].Kind)
}

func TestArchive(t *testing.T) {
	ctx := context.Background()
	blobs := &mockBlobStore{}
	svc := newTestService(t, blobs)
	id := upload(t, svc).SessionID

	key := "exports/" + id + "/" + excel.CSVFileName
	stamp := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	blobs.On("StoreBlob", key, "text/csv").Return(nil).Once()
	blobs.On("GetBlobMetadata", key).Return(&ports.BlobMetadata{Key: key, Size: 42, LastModified: stamp}, nil).Once()

	res, err := svc.Archive(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, key, res.Key)
	assert.Equal(t, "mem://"+key, res.Location)
	assert.Equal(t, int64(42), res.Size)
	assert.Equal(t, stamp, res.LastModified)
	assert.Equal(t, salesCSV, blobs.stored.String())
	blobs.AssertExpectations(t)
}

func TestArchiveWithoutMetadataKeepsEncodedSize(t *testing.T) {
	blobs := &mockBlobStore{}
	svc := newTestService(t, blobs)
	id := upload(t, svc).SessionID

	key := "exports/" + id + "/" + excel.CSVFileName
	blobs.On("StoreBlob", key, "text/csv").Return(nil).Once()
	blobs.On("GetBlobMetadata", key).Return(nil, errors.NotFound("blob")).Once()

	res, err := svc.Archive(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(len(salesCSV)), res.Size)
	assert.True(t, res.LastModified.IsZero())
}

func TestOpenArchive(t *testing.T) {
	ctx := context.Background()
	blobs := &mockBlobStore{}
	svc := newTestService(t, blobs)
	id := upload(t, svc).SessionID

	key := "exports/" + id + "/" + excel.CSVFileName
	blobs.On("BlobExists", key).Return(true, nil).Once()
	blobs.On("GetBlobMetadata", key).Return(&ports.BlobMetadata{Key: key, Size: int64(len(salesCSV))}, nil).Once()
	blobs.On("GetBlob", key).Return(io.NopCloser(strings.NewReader(salesCSV)), nil).Once()

	rc, meta, err := svc.OpenArchive(ctx, id)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, salesCSV, string(data))
	assert.Equal(t, int64(len(salesCSV)), meta.Size)
	blobs.AssertExpectations(t)
}

func TestOpenArchiveMissing(t *testing.T) {
	blobs := &mockBlobStore{}
	svc := newTestService(t, blobs)
	id := upload(t, svc).SessionID

	blobs.On("BlobExists", "exports/"+id+"/"+excel.CSVFileName).Return(false, nil).Once()

	_, _, err := svc.OpenArchive(context.Background(), id)
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
	blobs.AssertNotCalled(t, "GetBlob", mock.Anything)
}

func TestOpenArchiveDisabled(t *testing.T) {
	svc := newTestService(t, nil)
	id := upload(t, svc).SessionID

	_, _, err := svc.OpenArchive(context.Background(), id)
	assert.Equal(t, errors.CodeUnavailable, errors.GetCode(err))
}

func TestArchiveDisabled(t *testing.T) {
	svc := newTestService(t, nil)
	id := upload(t, svc).SessionID

	assert.False(t, svc.ArchiveEnabled())
	_, err := svc.Archive(context.Background(), id)
	assert.Equal(t, errors.CodeUnavailable, errors.GetCode(err))
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)
	id := upload(t, svc).SessionID

	require.NoError(t, svc.Close(ctx, id))
	_, err := svc.Snapshot(ctx, id)
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
	assert.Error(t, svc.Close(ctx, id))
}
