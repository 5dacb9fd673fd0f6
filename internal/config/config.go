package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type Config interface {
	Init(cmd *cobra.Command) error
	Set()
}

type Server struct {
	PProf   bool
	Metrics bool

	Cert   string
	Key    string
	Bind   string
	Static string
	Proxy  bool
}

func (Server) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().Bool("pprof", false, "enable pprof endpoint available at /debug/pprof")
	if err := viper.BindPFlag("pprof", cmd.PersistentFlags().Lookup("pprof")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("metrics", true, "expose prometheus metrics at /metrics")
	if err := viper.BindPFlag("metrics", cmd.PersistentFlags().Lookup("metrics")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("bind", "127.0.0.1:8080", "address/port/socket to serve on")
	if err := viper.BindPFlag("bind", cmd.PersistentFlags().Lookup("bind")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("cert", "", "path to the SSL cert used to secure the server")
	if err := viper.BindPFlag("cert", cmd.PersistentFlags().Lookup("cert")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("key", "", "path to the SSL key used to secure the server")
	if err := viper.BindPFlag("key", cmd.PersistentFlags().Lookup("key")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("static", "", "path to client files to serve")
	if err := viper.BindPFlag("static", cmd.PersistentFlags().Lookup("static")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("proxy", false, "allow reverse proxies")
	if err := viper.BindPFlag("proxy", cmd.PersistentFlags().Lookup("proxy")); err != nil {
		return err
	}

	return nil
}

func (s *Server) Set() {
	s.PProf = viper.GetBool("pprof")
	s.Metrics = viper.GetBool("metrics")

	s.Cert = viper.GetString("cert")
	s.Key = viper.GetString("key")
	s.Bind = viper.GetString("bind")
	s.Static = viper.GetString("static")
	s.Proxy = viper.GetBool("proxy")
}

type Media struct {
	// StorageRoot holds uploaded media, extracted subtitles and derived
	// assets. Everything the server persists lives under it.
	StorageRoot string `mapstructure:"storage-root"`
	// HLSDir holds per-file stream trees. Defaults to {storage-root}/hls.
	HLSDir string `mapstructure:"hls-dir"`
	// UploadDir holds in-flight chunk directories.
	UploadDir string `mapstructure:"upload-dir"`
	// DatabasePath is the sqlite file backing file and job records.
	DatabasePath string `mapstructure:"database"`

	FFmpegBinary  string `mapstructure:"ffmpeg-binary"`
	FFprobeBinary string `mapstructure:"ffprobe-binary"`

	// AudioVariants enables lazy Opus variants for lossless audio.
	AudioVariants bool `mapstructure:"audio-variants"`
	// EncodeTimeout is the hard ceiling on a single encoder invocation.
	EncodeTimeout time.Duration `mapstructure:"encode-timeout"`
}

func (Media) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().String("media.storage-root", "", "root directory for stored media and derived assets")
	if err := viper.BindPFlag("media.storage-root", cmd.PersistentFlags().Lookup("media.storage-root")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("media.hls-dir", "", "directory for HLS stream trees")
	if err := viper.BindPFlag("media.hls-dir", cmd.PersistentFlags().Lookup("media.hls-dir")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("media.upload-dir", "", "directory for in-flight upload chunks")
	if err := viper.BindPFlag("media.upload-dir", cmd.PersistentFlags().Lookup("media.upload-dir")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("media.database", "", "path to the sqlite database file")
	if err := viper.BindPFlag("media.database", cmd.PersistentFlags().Lookup("media.database")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("media.ffmpeg-binary", "ffmpeg", "ffmpeg binary to use")
	if err := viper.BindPFlag("media.ffmpeg-binary", cmd.PersistentFlags().Lookup("media.ffmpeg-binary")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("media.ffprobe-binary", "ffprobe", "ffprobe binary to use")
	if err := viper.BindPFlag("media.ffprobe-binary", cmd.PersistentFlags().Lookup("media.ffprobe-binary")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("media.audio-variants", false, "generate opus variants for lossless audio on demand")
	if err := viper.BindPFlag("media.audio-variants", cmd.PersistentFlags().Lookup("media.audio-variants")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("media.encode-timeout", 2*time.Hour, "hard timeout for a single encode")
	if err := viper.BindPFlag("media.encode-timeout", cmd.PersistentFlags().Lookup("media.encode-timeout")); err != nil {
		return err
	}

	return nil
}

func (m *Media) Set() {
	if err := viper.UnmarshalKey("media", m); err != nil {
		panic(err)
	}

	// defaults

	if m.StorageRoot == "" {
		cwd, _ := os.Getwd()
		m.StorageRoot = filepath.Join(cwd, "storage")
	}
	if err := os.MkdirAll(m.StorageRoot, 0755); err != nil {
		panic(err)
	}

	if m.HLSDir == "" {
		m.HLSDir = filepath.Join(m.StorageRoot, "hls")
	}
	if err := os.MkdirAll(m.HLSDir, 0755); err != nil {
		panic(err)
	}

	if m.UploadDir == "" {
		var err error
		m.UploadDir, err = os.MkdirTemp(os.TempDir(), "mediavault-upload")
		if err != nil {
			panic(err)
		}
	} else {
		if err := os.MkdirAll(m.UploadDir, 0755); err != nil {
			panic(err)
		}
	}

	if m.DatabasePath == "" {
		m.DatabasePath = filepath.Join(m.StorageRoot, "mediavault.db")
	}

	if m.FFmpegBinary == "" {
		m.FFmpegBinary = "ffmpeg"
	}

	if m.FFprobeBinary == "" {
		m.FFprobeBinary = "ffprobe"
	}

	if m.EncodeTimeout <= 0 {
		m.EncodeTimeout = 2 * time.Hour
	}
}
