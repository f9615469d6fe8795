package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterConfig bundles what NewRouter wires together.
type RouterConfig struct {
	API            *APIHandler
	Config         *ConfigHandler
	Registry       *RegistryHandler
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	Logger         *zap.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Logger != nil {
		r.Use(RequestLogger(cfg.Logger))
	}
	r.Use(CORS(cfg.AllowedOrigins))

	r.GET("/health", cfg.API.Health)
	r.GET("/config", cfg.Config.GetClientConfig)
	r.POST("/config", cfg.Config.UpdateClientConfig)
	r.POST("/install", cfg.API.InstallServer)
	r.DELETE("/uninstall/:name", cfg.API.UninstallServer)
	r.POST("/sync", cfg.API.SyncClientConfig)
	r.GET("/tasks/:id", cfg.API.GetTask)

	servers := r.Group("/servers")
	{
		servers.GET("", cfg.API.GetServers)
		servers.GET("/:name", cfg.API.GetServer)
		servers.PATCH("/:name", cfg.API.ReconfigureServer)
		servers.POST("/:name/start", cfg.API.StartServer)
		servers.POST("/:name/stop", cfg.API.StopServer)
	}

	if cfg.Registry != nil {
		r.GET("/registry", cfg.Registry.SearchServers)
		r.GET("/registry/:name", cfg.Registry.GetServer)
	}

	if cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	return r
}
