package api

import (
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"tradelink/internal/engine"
	"tradelink/internal/terminal"

	"github.com/gin-gonic/gin"
)

var symbolPattern = regexp.MustCompile(`^[A-Za-z0-9_$.-]+$`)

// postAlert handles POST /alert/:license_key. The body is a plain-text CSV
// line, "SYMBOL,action" or "SYMBOL,action,volume". Each validation stage
// short-circuits with its own error so the alert source can tell what it
// sent wrong.
func (s *Server) postAlert(c *gin.Context) {
	stored := s.Store.LicenseKey()
	if stored == "" || c.Param("license_key") != stored {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid license key"})
		return
	}

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Alert body could not be read"})
		return
	}
	body := strings.TrimSpace(string(raw))
	if body == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Alert body is empty"})
		return
	}

	fields := strings.Split(body, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if len(fields) != 2 && len(fields) != 3 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Alert must be SYMBOL,action or SYMBOL,action,volume"})
		return
	}

	symbol := fields[0]
	if !symbolPattern.MatchString(symbol) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid symbol"})
		return
	}

	var side terminal.Side
	switch strings.ToLower(fields[1]) {
	case "buy":
		side = terminal.SideBuy
	case "sell":
		side = terminal.SideSell
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Action must be buy or sell"})
		return
	}

	var volume *float64
	if len(fields) == 3 {
		v, err := strconv.ParseFloat(fields[2], 64)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Volume must be a positive number"})
			return
		}
		volume = &v
	}

	accepted := s.Engine.ProcessAlert(c.Request.Context(), engine.Alert{
		Symbol: symbol,
		Action: side,
		Volume: volume,
		Source: "local",
	})
	if !accepted {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Alert was rejected"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
