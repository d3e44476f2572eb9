package main

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const mermaidASCIIVersion = "1.1.0"

var mermaidASCIIReleaseURL = "https://github.com/AlexanderGrooff/mermaid-ascii/releases/download"

// SHA-256 checksums for mermaid-ascii v1.1.0 release assets.
var mermaidASCIIChecksums = map[string]string{
	"mermaid-ascii_Darwin_arm64.tar.gz":  "068d2ff869d4921655cab471500fffd8c3ed28155b100518ed3cf3835d53d3d0",
	"mermaid-ascii_Darwin_x86_64.tar.gz": "0cd4c9c01a03284fe866f39a1ce1aaee1e6a2fbd91deedc4ec254cb87622eec8",
	"mermaid-ascii_Linux_arm64.tar.gz":   "3b7d0a95141bfbca838e445ea802ffb7fba8873b3c4af498482c84f83526f2db",
	"mermaid-ascii_Linux_x86_64.tar.gz":  "838ea93d561b3bc83aa15531c6ed7d2d261a8edc521d5484f7e91fe831cc4c65",
}

// runInstall writes settings.json from flags, installs mermaid-ascii for
// ASCII diagrams and asks a running server to reload.
func runInstall(ctx context.Context, out io.Writer, args []string) error {
	def := defaultConfig()
	fs := newFlagSet("install", out)
	listenAddr := fs.String("listen-addr", def.ListenAddr, "TCP listen address")
	baseURL := fs.String("base-url", "", "public base URL (derived from listen-addr if empty)")
	dbPath := fs.String("db-path", def.DBPath, "database path")
	logLevel := fs.String("log-level", def.LogLevel, "log level: debug, info, warn, error")
	panelFlag := fs.Bool("panel", def.Panel, "enable web panel")
	taktTime := fs.Float64("takt-time", 0, "takt time override in seconds (0 derives it from the customer)")
	backupCron := fs.String("backup-cron", def.BackupCron, `canvas backup schedule, "-" disables`)
	skipTools := fs.Bool("skip-tools", false, "do not download mermaid-ascii")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := def
	cfg.ListenAddr = *listenAddr
	cfg.BaseURL = *baseURL
	cfg.DBPath = *dbPath
	cfg.LogLevel = *logLevel
	cfg.Panel = *panelFlag
	cfg.TaktTime = *taktTime
	cfg.BackupCron = *backupCron
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost" + cfg.ListenAddr
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}

	if err := writeSettings(settingsPath(), cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "Config written to %s\n", settingsPath())

	if !*skipTools {
		client := &http.Client{Timeout: 60 * time.Second}
		dest, err := installMermaidASCII(ctx, binDir(), client)
		if err != nil {
			fmt.Fprintf(out, "Warning: %v; ASCII diagrams will use the built-in renderer\n", err)
		} else {
			fmt.Fprintf(out, "mermaid-ascii ready at %s\n", dest)
		}
	}

	if pid, ok := signalRunningServer(); ok {
		fmt.Fprintf(out, "Signaled running server (PID %d) to reload configuration\n", pid)
		return nil
	}
	fmt.Fprintln(out, "Start the server with: vsm serve")
	return nil
}

func writeSettings(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// signalRunningServer sends SIGHUP to a running vsm server (via pidfile).
func signalRunningServer() (int, bool) {
	data, err := os.ReadFile(pidPath())
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}
	// Check if process is alive.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return 0, false
	}
	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return 0, false
	}
	return pid, true
}

// installMermaidASCII downloads, verifies and unpacks the mermaid-ascii
// binary into binDir. An existing binary is kept.
func installMermaidASCII(ctx context.Context, binDir string, client httpDoer) (string, error) {
	destPath := filepath.Join(binDir, "mermaid-ascii")
	if _, err := os.Stat(destPath); err == nil {
		return destPath, nil
	}

	assetName, err := mermaidASCIIAssetName(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", binDir, err)
	}

	url := fmt.Sprintf("%s/%s/%s", mermaidASCIIReleaseURL, mermaidASCIIVersion, assetName)
	tmpPath, err := downloadToTempFile(ctx, url, binDir, client)
	if err != nil {
		return "", fmt.Errorf("download mermaid-ascii: %w", err)
	}
	defer os.Remove(tmpPath)

	expected, ok := mermaidASCIIChecksums[assetName]
	if !ok {
		return "", fmt.Errorf("no known checksum for %s", assetName)
	}
	if err := verifyChecksum(tmpPath, expected); err != nil {
		return "", fmt.Errorf("%s: %w", assetName, err)
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := extractTarGz(f, binDir, "mermaid-ascii"); err != nil {
		_ = os.Remove(destPath)
		return "", fmt.Errorf("extract mermaid-ascii: %w", err)
	}
	if err := os.Chmod(destPath, 0o755); err != nil {
		return "", err
	}
	return destPath, nil
}

// mermaidASCIIAssetName returns the GitHub release asset name for a platform.
func mermaidASCIIAssetName(goos, goarch string) (string, error) {
	var osName string
	switch goos {
	case "darwin":
		osName = "Darwin"
	case "linux":
		osName = "Linux"
	default:
		return "", fmt.Errorf("mermaid-ascii: unsupported OS %q", goos)
	}

	var archName string
	switch goarch {
	case "amd64":
		archName = "x86_64"
	case "arm64":
		archName = "arm64"
	default:
		return "", fmt.Errorf("mermaid-ascii: unsupported architecture %q", goarch)
	}

	return fmt.Sprintf("mermaid-ascii_%s_%s.tar.gz", osName, archName), nil
}

// extractTarGz extracts a specific file from a tar.gz archive into destDir.
func extractTarGz(r io.Reader, destDir, targetName string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("gzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("file %q not found in archive", targetName)
		}
		if err != nil {
			return fmt.Errorf("tar: %w", err)
		}

		// Archives may carry a directory prefix.
		if filepath.Base(hdr.Name) != targetName || hdr.Typeflag != tar.TypeReg {
			continue
		}

		destPath := filepath.Join(destDir, targetName)
		f, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
		if err != nil {
			return fmt.Errorf("create %s: %w", destPath, err)
		}
		if _, err := io.Copy(f, tr); err != nil { //nolint:gosec // bounded by tar header size
			f.Close()
			return fmt.Errorf("write %s: %w", destPath, err)
		}
		return f.Close()
	}
}
