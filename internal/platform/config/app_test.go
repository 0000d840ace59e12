package config

import "testing"

// TestLoadDefaults 无环境变量时使用默认值。
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.MaxOpenConns != 25 || cfg.Database.MaxIdleConns != 5 {
		t.Errorf("default pool settings wrong: %+v", cfg.Database)
	}
	if cfg.Mobile.MaxSectionCount != 8 {
		t.Errorf("default section count = %d, want 8", cfg.Mobile.MaxSectionCount)
	}
}

// TestEnvOverrides 环境变量覆盖数据库连接池与移动端裁剪配置。
func TestEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_MAX_OPEN_CONNS", "50")
	t.Setenv("DATABASE_MAX_IDLE_CONNS", "10")
	t.Setenv("DATABASE_CONN_MAX_LIFETIME", "600")
	t.Setenv("MOBILE_MAX_SECTION_COUNT", "4")
	t.Setenv("MOBILE_MAX_NODES", "6")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.MaxOpenConns != 50 || cfg.Database.MaxIdleConns != 10 || cfg.Database.ConnMaxLifetimeSeconds != 600 {
		t.Errorf("pool overrides not applied: %+v", cfg.Database)
	}
	if cfg.Mobile.MaxSectionCount != 4 || cfg.Mobile.MaxNodes != 6 {
		t.Errorf("mobile overrides not applied: %+v", cfg.Mobile)
	}
	t.Logf("✅ 环境变量覆盖通过")
}
