package main

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"imaged/internal/common/fsutil"
)

func logWriter(file string, stderr *os.File) (io.Writer, func(), error) {
	var console io.Writer = stderr
	if isatty.IsTerminal(stderr.Fd()) {
		console = zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.TimeOnly}
	}
	if file == "" {
		return console, func() {}, nil
	}
	path, err := fsutil.ExpandHome(file)
	if err != nil {
		return nil, nil, err
	}
	if _, err := fsutil.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, nil, err
	}
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50,
		MaxBackups: 3,
		MaxAge:     14,
		Compress:   true,
	}
	return zerolog.MultiLevelWriter(console, lj), func() { _ = lj.Close() }, nil
}
