package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	core "ledgernote/core"
	"ledgernote/apiserver/config"
	"ledgernote/apiserver/controllers"
	"ledgernote/apiserver/routes"
	"ledgernote/apiserver/services"
)

func main() {
	srvCfg, err := config.Load()
	if err != nil {
		logrus.Fatal(err)
	}
	coreCfg, err := core.LoadConfig()
	if err != nil {
		logrus.Fatal(err)
	}

	client := coreCfg.LedgerClient()
	store, err := core.NewStore(coreCfg.StoreDir, nil)
	if err != nil {
		logrus.Fatal(err)
	}
	secret, err := core.NewProcessSecret(coreCfg.PrivateKeyAES)
	if err != nil {
		logrus.Fatal(err)
	}
	manager := core.NewManager(client, store, secret, coreCfg.AppName, nil)

	svc := services.NewService(manager, client)
	ctrl := controllers.NewUploadController(svc)

	r := mux.NewRouter()
	routes.Register(r, ctrl)

	logrus.Infof("notestore api listening on %s", srvCfg.Port)
	if err := http.ListenAndServe(":"+srvCfg.Port, r); err != nil {
		logrus.Fatal(err)
	}
}
