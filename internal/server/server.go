package server

import (
	"io"
	"net/http"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/NadavAzoulay124/portfolio.AI/internal/importer"
	"github.com/NadavAzoulay124/portfolio.AI/internal/portfolio"
)

// defaultSessionKey serves clients that do not send a session header; they
// all share one upload slot, like the original single-user deployment.
const defaultSessionKey = "default"

// Server wires the router, the ledger, and the session-keyed upload cache.
type Server struct {
	Router  *gin.Engine
	ledger  *portfolio.Ledger
	uploads *ristretto.Cache
	ttl     time.Duration
	logger  *zap.Logger
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// New builds the HTTP surface. staticDir is served under /app; uploaded
// tables stay readable for ttl per session before the cache evicts them.
func New(ledger *portfolio.Ledger, logger *zap.Logger, staticDir string, ttl time.Duration) (*Server, error) {
	uploads, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	g := gin.New()

	// Request logging
	g.Use(func(cn *gin.Context) {
		start := time.Now()
		cn.Next()
		logger.Info("http_request",
			zap.String("method", cn.Request.Method),
			zap.String("path", cn.Request.URL.Path),
			zap.Int("status", cn.Writer.Status()),
			zap.String("ip", cn.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		)
	})

	g.Use(gin.Recovery())

	// Permissive CORS, matching the original dev deployment.
	g.Use(func(cn *gin.Context) {
		cn.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		cn.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Session-ID")
		cn.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if cn.Request.Method == http.MethodOptions {
			cn.AbortWithStatus(http.StatusNoContent)
			return
		}
		cn.Next()
	})

	s := &Server{
		Router:  g,
		ledger:  ledger,
		uploads: uploads,
		ttl:     ttl,
		logger:  logger,
	}

	g.GET("/health", s.health)
	g.POST("/portfolio/upload", s.uploadPortfolio)
	g.GET("/portfolio", s.getPortfolio)
	g.POST("/portfolio/import", s.importPortfolio)
	g.GET("/positions", s.getPositions)
	if staticDir != "" {
		g.Static("/app", staticDir)
	}

	return s, nil
}

// sessionKey scopes upload state to the caller. Clients that identify
// themselves with X-Session-ID get an isolated slot.
func sessionKey(c *gin.Context) string {
	if id := c.GetHeader("X-Session-ID"); id != "" {
		return id
	}
	return defaultSessionKey
}

func (s *Server) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, apiError{Code: "bad_request", Message: msg})
}

func (s *Server) internalError(c *gin.Context, where string, err error) {
	s.logger.Error("internal_error", zap.String("where", where), zap.Error(err))
	c.JSON(http.StatusInternalServerError, apiError{Code: "internal_server_error", Message: "internal server error"})
}

// readUpload pulls the multipart "file" field's bytes out of the request.
func readUpload(c *gin.Context) ([]byte, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return nil, err
	}
	f, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// --- Handlers ---

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// uploadPortfolio parses the uploaded spreadsheet into the transient,
// session-scoped table read back by GET /portfolio. The ledger is not
// touched.
func (s *Server) uploadPortfolio(c *gin.Context) {
	content, err := readUpload(c)
	if err != nil {
		s.badRequest(c, "upload error: "+err.Error())
		return
	}

	table, err := importer.Parse(content)
	if err != nil {
		s.badRequest(c, "upload/parse error: "+err.Error())
		return
	}

	key := sessionKey(c)
	s.uploads.SetWithTTL(key, table, 1, s.ttl)
	// Set is buffered; flush so an immediate read-back sees the table.
	s.uploads.Wait()

	s.logger.Info("portfolio uploaded",
		zap.String("session", key), zap.Int("rows", len(table.Rows)))
	c.JSON(http.StatusOK, gin.H{"rows_loaded": len(table.Rows)})
}

// getPortfolio returns the caller's uploaded table, or an empty list when
// nothing was uploaded (or the entry expired).
func (s *Server) getPortfolio(c *gin.Context) {
	val, ok := s.uploads.Get(sessionKey(c))
	if !ok {
		c.JSON(http.StatusOK, gin.H{"positions": []importer.Row{}})
		return
	}
	table, ok := val.(*importer.Table)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"positions": []importer.Row{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": table.Rows})
}

// importPortfolio is the destructive bulk load: the uploaded file replaces
// the entire ledger.
func (s *Server) importPortfolio(c *gin.Context) {
	content, err := readUpload(c)
	if err != nil {
		s.badRequest(c, "upload error: "+err.Error())
		return
	}

	rows, err := importer.ParseLedger(content)
	if err != nil {
		s.badRequest(c, "upload/parse error: "+err.Error())
		return
	}

	if err := s.ledger.Replace(rows); err != nil {
		s.internalError(c, "Replace", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows_loaded": len(rows)})
}

// getPositions reads the persisted ledger, ordered by ticker.
func (s *Server) getPositions(c *gin.Context) {
	positions, err := s.ledger.List()
	if err != nil {
		s.internalError(c, "List", err)
		return
	}
	records := make([]any, 0, len(positions))
	for i := range positions {
		records = append(records, positions[i].AsRecord())
	}
	c.JSON(http.StatusOK, gin.H{"positions": records})
}
