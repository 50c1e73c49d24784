package echo

import e "github.com/labstack/echo/v4"

func RegisterRoutes(server *e.Echo, importHandler *ImportHandler, progressHandler *ProgressHandler, socketHandler *ProgressSocketHandler) {
	api := server.Group("/api/v1")

	api.POST("/libraries/:libraryId/imports/isbn", importHandler.StartIsbnImport)
	api.GET("/libraries/:libraryId/imports/active", progressHandler.ListActiveImports)
	api.GET("/imports/ws", socketHandler.Serve)
	api.GET("/imports/:jobId", progressHandler.GetImportProgress)
}
