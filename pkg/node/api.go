package node

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type HostApi struct {
	Api  *echo.Echo
	Host *Host
}

func (hapi *HostApi) GetStats(c echo.Context) error {
	return c.JSON(http.StatusOK, hapi.Host.Stats())
}

func (hapi *HostApi) GetSessions(c echo.Context) error {
	sessions := hapi.Host.Sessions()
	if sessions == nil {
		sessions = []SessionInfo{}
	}
	return c.JSON(http.StatusOK, sessions)
}

func (hapi *HostApi) GetSession(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	s, ok := hapi.Host.Session(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no such session")
	}
	return c.JSON(http.StatusOK, s.Info())
}

// NewAPI builds the stats API of h. The caller starts it.
func NewAPI(h *Host) *echo.Echo {
	api := echo.New()
	api.HideBanner = true
	api.HidePort = true
	hapi := &HostApi{Api: api, Host: h}
	api.GET("/stats", hapi.GetStats)
	api.GET("/sessions", hapi.GetSessions)
	api.GET("/sessions/:id", hapi.GetSession)
	return api
}
