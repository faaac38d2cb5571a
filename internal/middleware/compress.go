package middleware

import (
	"compress/gzip"
	"strings"

	"github.com/gin-gonic/gin"
)

// gzipWriter starts compressing on the first body write, so responses
// without a body (204, preflight) go out untouched.
type gzipWriter struct {
	gin.ResponseWriter
	level  int
	writer *gzip.Writer
}

func (g *gzipWriter) start() error {
	if g.writer != nil {
		return nil
	}
	gz, err := gzip.NewWriterLevel(g.ResponseWriter, g.level)
	if err != nil {
		return err
	}
	h := g.ResponseWriter.Header()
	h.Del("Content-Length")
	h.Set("Content-Encoding", "gzip")
	g.writer = gz
	return nil
}

func (g *gzipWriter) Write(data []byte) (int, error) {
	if err := g.start(); err != nil {
		return 0, err
	}
	return g.writer.Write(data)
}

func (g *gzipWriter) WriteString(s string) (int, error) {
	return g.Write([]byte(s))
}

func (g *gzipWriter) close() {
	if g.writer != nil {
		g.writer.Close()
	}
}

type CompressConfig struct {
	Level     int
	SkipPaths []string
}

func DefaultCompressConfig() CompressConfig {
	return CompressConfig{
		Level:     gzip.DefaultCompression,
		SkipPaths: []string{"/health", "/metrics"},
	}
}

// Compress gzips response bodies for clients that accept it.
func Compress(config CompressConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, path := range config.SkipPaths {
			if strings.HasPrefix(c.Request.URL.Path, path) {
				c.Next()
				return
			}
		}

		if !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")
		gz := &gzipWriter{ResponseWriter: c.Writer, level: config.Level}
		c.Writer = gz
		defer func() {
			gz.close()
			c.Writer = gz.ResponseWriter
		}()

		c.Next()
	}
}
