// Command worldvibe runs the WorldVibe check-in API.
//
// @title                       WorldVibe API
// @version                     1.0
// @description                 Anonymous daily emotional check-ins with streaks, trending keywords and a live feed.
// @BasePath                    /api/v1
// @securityDefinitions.apikey  AdminBearer
// @in                          header
// @name                        Authorization
package main

func main() {
	Execute()
}
