package config

import "github.com/joho/godotenv"

type AppConfig struct {
	Server ServerConfig
	Race   RaceConfig
	Log    LogConfig
	Push   PushConfig
}

// LoadApp reads every server section from the environment. A .env file in
// the working directory is applied first when present; real environment
// variables win over it.
func LoadApp() (AppConfig, error) {
	_ = godotenv.Load()
	logCfg, err := LoadLog()
	if err != nil {
		return AppConfig{}, err
	}
	serverCfg, err := LoadServer()
	if err != nil {
		return AppConfig{}, err
	}
	raceCfg, err := LoadRace()
	if err != nil {
		return AppConfig{}, err
	}
	pushCfg, err := LoadPush()
	if err != nil {
		return AppConfig{}, err
	}
	return AppConfig{
		Server: serverCfg,
		Race:   raceCfg,
		Log:    logCfg,
		Push:   pushCfg,
	}, nil
}
