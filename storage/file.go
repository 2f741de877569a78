package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/ceyewan/harvest/clog"
	"github.com/ceyewan/harvest/record"
	"github.com/ceyewan/harvest/xerrors"
)

// FileConfig 文件后端配置
type FileConfig struct {
	// Dir 相对路径目标的根目录 (默认: "data/exports")
	Dir string `mapstructure:"dir"`
}

type fileBackend struct {
	dir    string
	logger clog.Logger
	locks  sync.Map // map[string]*sync.Mutex，按文件路径
}

// NewFile 创建文件后端：每个目标一个文件，整文件先写临时文件再 rename。
//
// overwrite 模式只保留本批次；append 模式在已有内容后追加；
// upsert 模式按唯一键合并已有内容，同键保留本批次的值。
func NewFile(cfg *FileConfig, opts ...Option) (Backend, error) {
	c := FileConfig{}
	if cfg != nil {
		c = *cfg
	}
	if c.Dir == "" {
		c.Dir = filepath.Join("data", "exports")
	}
	o := applyOptions(opts)
	return &fileBackend{
		dir:    c.Dir,
		logger: o.logger.With(clog.String("backend", KindFile)),
	}, nil
}

func (b *fileBackend) Kind() string { return KindFile }
func (b *fileBackend) Close() error { return nil }

// Path 返回目标对应的文件路径，未带扩展名时按格式补齐
func (b *fileBackend) Path(target *Target) string {
	p := target.TableOrPath
	if filepath.Ext(p) == "" {
		p += "." + target.EffectiveFormat()
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(b.dir, p)
	}
	return p
}

func (b *fileBackend) lock(path string) *sync.Mutex {
	v, _ := b.locks.LoadOrStore(path, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (b *fileBackend) Write(ctx context.Context, target *Target, records []record.Record) (int, error) {
	path := b.Path(target)
	mu := b.lock(path)
	mu.Lock()
	defer mu.Unlock()

	format := target.EffectiveFormat()
	rows := records
	mode := target.EffectiveMode()
	if mode == ModeAppend || mode == ModeUpsert {
		existing, err := readRecords(path, format)
		if err != nil {
			return 0, err
		}
		rows = append(existing, records...)
		if mode == ModeUpsert {
			rows = record.Dedupe(rows, target.UniqueColumns)
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	var err error
	switch format {
	case FormatJSONL:
		err = encodeJSONL(&buf, rows)
	default:
		err = encodeCSV(&buf, rows)
	}
	if err != nil {
		return 0, xerrors.Wrapf(err, "encode %s", path)
	}
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return 0, err
	}

	b.logger.DebugContext(ctx, "export written",
		clog.String("path", path),
		clog.String("format", format),
		clog.Int("rows", len(rows)))
	return len(records), nil
}

func encodeCSV(w io.Writer, rows []record.Record) error {
	cols := record.UnionColumns(rows)
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return err
	}
	line := make([]string, len(cols))
	for _, r := range rows {
		for i, c := range cols {
			line[i] = record.Text(r[c])
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func encodeJSONL(w io.Writer, rows []record.Record) error {
	enc := json.NewEncoder(w)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// readRecords 读回已有导出，文件不存在时返回空
func readRecords(path, format string) ([]record.Record, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, xerrors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	var out []record.Record
	if format == FormatJSONL {
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
		for sc.Scan() {
			if len(bytes.TrimSpace(sc.Bytes())) == 0 {
				continue
			}
			dec := json.NewDecoder(bytes.NewReader(sc.Bytes()))
			dec.UseNumber()
			var r record.Record
			if err := dec.Decode(&r); err != nil {
				return nil, xerrors.Wrapf(err, "decode %s", path)
			}
			out = append(out, record.NormalizeRecord(r))
		}
		return out, sc.Err()
	}

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, xerrors.Wrapf(err, "decode %s", path)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	header := rows[0]
	for _, line := range rows[1:] {
		r := make(record.Record, len(header))
		for i, col := range header {
			if i < len(line) && line[i] != "" {
				r[col] = line[i]
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// writeFileAtomic 先写同目录临时文件再 rename，读者不会看到半个文件
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return xerrors.Wrapf(err, "create dir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return xerrors.Wrap(err, "create temp file")
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return xerrors.Wrap(err, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return xerrors.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return xerrors.Wrap(err, "close temp file")
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return xerrors.Wrapf(err, "rename into %s", path)
	}
	return nil
}
