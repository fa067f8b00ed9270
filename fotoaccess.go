package fotoaccess

import (
	"github.com/lumenfoto/fotoaccess/app"
)

type App = app.App

type AppBuilder = app.AppBuilder

func New() *AppBuilder {
	return app.NewApp()
}
