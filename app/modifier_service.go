package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"tablefix/adapters/excel"
	"tablefix/domain/modifier"
	"tablefix/domain/table"
	"tablefix/internal/errors"
	"tablefix/internal/profiling"
	"tablefix/internal/report"
	"tablefix/internal/session"
	"tablefix/ports"
)

// Snapshot is the state of a session after an operation
type Snapshot struct {
	SessionID string              `json:"id"`
	FileName  string              `json:"file_name"`
	Table     *table.Table        `json:"-"`
	Log       []modifier.LogEntry `json:"-"`
}

// ArchiveResult describes a stored export
type ArchiveResult struct {
	Key          string                `json:"key"`
	Location     string                `json:"location"`
	Provider     ports.StorageProvider `json:"provider"`
	Size         int64                 `json:"size"`
	LastModified time.Time             `json:"last_modified"`
}

// ModifierService runs table modifications against user sessions
type ModifierService struct {
	sessions  *session.Store
	reader    ports.TableReader
	profiler  *profiling.DataProfiler
	blobs     ports.BlobStore
	maxUpload int64
	logger    *slog.Logger
	now       func() time.Time
}

// NewModifierService creates the service. blobs may be nil, which disables
// archiving. maxUpload <= 0 means no size limit.
func NewModifierService(sessions *session.Store, reader ports.TableReader, blobs ports.BlobStore, maxUpload int64, logger *slog.Logger) *ModifierService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModifierService{
		sessions:  sessions,
		reader:    reader,
		profiler:  profiling.NewDataProfiler(),
		blobs:     blobs,
		maxUpload: maxUpload,
		logger:    logger.With("component", "ModifierService"),
		now:       time.Now,
	}
}

// Upload parses a file and loads it into the session, starting a fresh log.
// An empty or unknown session ID starts a new session. A file that fails to
// parse leaves any existing session untouched.
func (s *ModifierService) Upload(ctx context.Context, sessionID, fileName string, src io.Reader) (*Snapshot, error) {
	data, err := s.readUpload(src)
	if err != nil {
		return nil, err
	}

	name := filepath.Base(strings.ReplaceAll(fileName, "\\", "/"))
	var t *table.Table
	err = s.guard("upload", func() error {
		var perr error
		t, perr = s.reader.ReadTable(name, bytes.NewReader(data))
		return perr
	})
	if err != nil {
		s.logger.Warn("upload rejected", "file", name, "error", err)
		return nil, err
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		sess = s.sessions.Create()
	}

	var snap *Snapshot
	_ = sess.Update(func(st *session.State) error {
		sess.Reset(st, name, t)
		snap = snapshotOf(sess.ID, st)
		return nil
	})

	s.logger.Info("file loaded",
		"session", sess.ID,
		"file", name,
		"rows", t.Len(),
		"columns", len(t.Columns),
		"bytes", len(data))
	return snap, nil
}

func (s *ModifierService) readUpload(src io.Reader) ([]byte, error) {
	if s.maxUpload <= 0 {
		data, err := io.ReadAll(src)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read upload")
		}
		return data, nil
	}
	data, err := io.ReadAll(io.LimitReader(src, s.maxUpload+1))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read upload")
	}
	if int64(len(data)) > s.maxUpload {
		return nil, errors.TooLarge(fmt.Sprintf("file exceeds the %d MB upload limit", s.maxUpload/(1024*1024)))
	}
	return data, nil
}

// Snapshot returns the current state of a session
func (s *ModifierService) Snapshot(ctx context.Context, sessionID string) (*Snapshot, error) {
	var snap *Snapshot
	err := s.view(sessionID, func(st session.State) error {
		snap = snapshotOf(sessionID, &st)
		return nil
	})
	return snap, err
}

// Close ends a session
func (s *ModifierService) Close(ctx context.Context, sessionID string) error {
	if _, err := s.sessions.Get(sessionID); err != nil {
		return err
	}
	s.sessions.Delete(sessionID)
	s.logger.Info("session closed", "session", sessionID)
	return nil
}

// Run dispatches one of the three modifier actions by name. params is
// ignored for remove_duplicates.
func (s *ModifierService) Run(ctx context.Context, sessionID, action, params string) (*Snapshot, error) {
	switch action {
	case modifier.ActionRemoveDuplicates:
		return s.RemoveDuplicates(ctx, sessionID)
	case modifier.ActionApplyRules:
		return s.ApplyRules(ctx, sessionID, params)
	case modifier.ActionAddOrDeleteRows:
		return s.AddOrDeleteRows(ctx, sessionID, params)
	default:
		return nil, errors.InvalidInput(fmt.Sprintf("unknown operation %q", action))
	}
}

// RemoveDuplicates drops duplicate rows from the session table
func (s *ModifierService) RemoveDuplicates(ctx context.Context, sessionID string) (*Snapshot, error) {
	return s.modify(sessionID, modifier.ActionRemoveDuplicates, func(m *modifier.Modifier, t *table.Table) (*table.Table, error) {
		return m.RemoveDuplicates(t), nil
	})
}

// ApplyRules decodes the rules JSON and filters the session table
func (s *ModifierService) ApplyRules(ctx context.Context, sessionID, rulesJSON string) (*Snapshot, error) {
	if _, err := s.sessions.Get(sessionID); err != nil {
		return nil, err
	}
	rules, err := modifier.ParseRules(rulesJSON)
	if err != nil {
		s.logger.Warn("rules rejected", "session", sessionID, "error", err)
		return nil, err
	}
	return s.modify(sessionID, modifier.ActionApplyRules, func(m *modifier.Modifier, t *table.Table) (*table.Table, error) {
		return m.ApplyRules(t, rules)
	})
}

// AddOrDeleteRows decodes the operations JSON and replays it on the session
// table
func (s *ModifierService) AddOrDeleteRows(ctx context.Context, sessionID, opsJSON string) (*Snapshot, error) {
	if _, err := s.sessions.Get(sessionID); err != nil {
		return nil, err
	}
	ops, err := modifier.ParseOperations(opsJSON)
	if err != nil {
		s.logger.Warn("operations rejected", "session", sessionID, "error", err)
		return nil, err
	}
	return s.modify(sessionID, modifier.ActionAddOrDeleteRows, func(m *modifier.Modifier, t *table.Table) (*table.Table, error) {
		return m.AddOrDeleteRows(t, ops)
	})
}

// Log returns the modification log of the session
func (s *ModifierService) Log(ctx context.Context, sessionID string) ([]modifier.LogEntry, error) {
	var entries []modifier.LogEntry
	err := s.view(sessionID, func(st session.State) error {
		entries = st.Modifier.SaveLog()
		return nil
	})
	return entries, err
}

// ExportCSV writes the current table as CSV
func (s *ModifierService) ExportCSV(ctx context.Context, sessionID string, w io.Writer) error {
	t, err := s.currentTable(sessionID)
	if err != nil {
		return err
	}
	return s.guard("export_csv", func() error {
		return excel.WriteCSV(t, w)
	})
}

// ExportXLSX writes the current table as an xlsx workbook
func (s *ModifierService) ExportXLSX(ctx context.Context, sessionID string, w io.Writer) error {
	t, err := s.currentTable(sessionID)
	if err != nil {
		return err
	}
	return s.guard("export_xlsx", func() error {
		return excel.WriteXLSX(t, w)
	})
}

// Report builds the Markdown report of the session log
func (s *ModifierService) Report(ctx context.Context, sessionID string) ([]byte, error) {
	var in report.Input
	err := s.view(sessionID, func(st session.State) error {
		in = report.Input{
			FileName:    st.FileName,
			Rows:        st.Table.Len(),
			Columns:     len(st.Table.Columns),
			Entries:     st.Modifier.SaveLog(),
			GeneratedAt: s.now(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report.Markdown(in), nil
}

// Profile summarizes every column of the current table
func (s *ModifierService) Profile(ctx context.Context, sessionID string) ([]profiling.ColumnProfile, error) {
	t, err := s.currentTable(sessionID)
	if err != nil {
		return nil, err
	}
	var profiles []profiling.ColumnProfile
	err = s.guard("profile", func() error {
		profiles = s.profiler.ProfileTable(t)
		return nil
	})
	return profiles, err
}

// ArchiveEnabled reports whether a blob store is configured
func (s *ModifierService) ArchiveEnabled() bool {
	return s.blobs != nil
}

// Archive stores the current table as CSV in the blob store
func (s *ModifierService) Archive(ctx context.Context, sessionID string) (*ArchiveResult, error) {
	if s.blobs == nil {
		return nil, errors.Unavailable("export archive")
	}
	t, err := s.currentTable(sessionID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := excel.WriteCSV(t, &buf); err != nil {
		return nil, errors.Wrap(err, "failed to encode export")
	}

	key := archiveKey(sessionID)
	size := int64(buf.Len())
	if err := s.blobs.StoreBlob(ctx, key, "text/csv", &buf); err != nil {
		s.logger.Error("archive failed", "session", sessionID, "provider", s.blobs.Provider(), "error", err)
		return nil, errors.Wrap(err, "failed to archive export")
	}

	res := &ArchiveResult{
		Key:      key,
		Location: s.blobs.Location(key),
		Provider: s.blobs.Provider(),
		Size:     size,
	}
	if meta, err := s.blobs.GetBlobMetadata(ctx, key); err != nil {
		s.logger.Warn("archived export metadata unavailable", "session", sessionID, "key", key, "error", err)
	} else {
		res.Size = meta.Size
		res.LastModified = meta.LastModified
	}
	s.logger.Info("export archived", "session", sessionID, "location", res.Location, "bytes", res.Size)
	return res, nil
}

// OpenArchive returns the export last archived for the session. The caller
// closes the reader.
func (s *ModifierService) OpenArchive(ctx context.Context, sessionID string) (io.ReadCloser, *ports.BlobMetadata, error) {
	if s.blobs == nil {
		return nil, nil, errors.Unavailable("export archive")
	}
	if _, err := s.sessions.Get(sessionID); err != nil {
		return nil, nil, err
	}

	key := archiveKey(sessionID)
	ok, err := s.blobs.BlobExists(ctx, key)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to look up archived export")
	}
	if !ok {
		return nil, nil, errors.NotFound("archived export")
	}

	meta, err := s.blobs.GetBlobMetadata(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.GetBlob(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	return rc, meta, nil
}

func archiveKey(sessionID string) string {
	return path.Join("exports", sessionID, excel.CSVFileName)
}

// modify runs fn against the session table and swaps in the result. On error
// or panic the session table is left as it was.
func (s *ModifierService) modify(sessionID, action string, fn func(*modifier.Modifier, *table.Table) (*table.Table, error)) (*Snapshot, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}

	var snap *Snapshot
	err = s.guard(action, func() error {
		return sess.Update(func(st *session.State) error {
			if !st.Loaded() {
				return errNoFile()
			}
			start := time.Now()
			before := st.Table.Len()

			out, err := fn(st.Modifier, st.Table)
			if err != nil {
				return err
			}
			st.Table = out
			snap = snapshotOf(sess.ID, st)

			s.logger.Info("table modified",
				"session", sess.ID,
				"action", action,
				"rows_before", before,
				"rows_after", out.Len(),
				"duration", time.Since(start))
			return nil
		})
	})
	if err != nil {
		s.logger.Warn("modification failed", "session", sessionID, "action", action, "code", errors.GetCode(err), "error", err)
		return nil, err
	}
	return snap, nil
}

func (s *ModifierService) view(sessionID string, fn func(session.State) error) error {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	sess.View(func(st session.State) {
		if !st.Loaded() {
			err = errNoFile()
			return
		}
		err = fn(st)
	})
	return err
}

func (s *ModifierService) currentTable(sessionID string) (*table.Table, error) {
	var t *table.Table
	err := s.view(sessionID, func(st session.State) error {
		t = st.Table
		return nil
	})
	return t, err
}

// guard converts a panic in fn into an INTERNAL_ERROR
func (s *ModifierService) guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("operation panicked", "operation", op, "panic", r)
			err = errors.InternalError(fmt.Sprintf("%s failed unexpectedly", op))
		}
	}()
	return fn()
}

func snapshotOf(id string, st *session.State) *Snapshot {
	return &Snapshot{
		SessionID: id,
		FileName:  st.FileName,
		Table:     st.Table,
		Log:       st.Modifier.SaveLog(),
	}
}

func errNoFile() error {
	return errors.InvalidInput("no file has been uploaded")
}
