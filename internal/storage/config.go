package storage

import "fmt"

// Kind discriminates the provider configuration union.
type Kind string

const (
	// KindS3 is an S3-compatible object store.
	KindS3 Kind = "s3"
	// KindLocal is a directory on the local filesystem.
	KindLocal Kind = "local"
	// KindAList is an AList file-host server (session-token API).
	KindAList Kind = "alist"
	// KindOpenList is an OpenList server; protocol-compatible with AList.
	KindOpenList Kind = "openlist"
	// KindBaidu is Baidu Netdisk (OAuth refresh-token API).
	KindBaidu Kind = "baidu"
)

// Config is the tagged union of provider configurations. Provider selects
// the variant; exactly the matching variant pointer must be set.
type Config struct {
	Provider Kind         `json:"provider"`
	S3       *S3Config    `json:"s3,omitempty"`
	Local    *LocalConfig `json:"local,omitempty"`
	AList    *AListConfig `json:"alist,omitempty"`
	Baidu    *BaiduConfig `json:"baidu,omitempty"`
}

// S3Config configures an S3-compatible object store.
type S3Config struct {
	Bucket          string `json:"bucket"`
	Region          string `json:"region,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
	Prefix          string `json:"prefix,omitempty"`
	CDNURL          string `json:"cdnUrl,omitempty"`
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	ForcePathStyle  bool   `json:"forcePathStyle,omitempty"`
}

// LocalConfig configures the filesystem provider.
type LocalConfig struct {
	BasePath string `json:"basePath"`
	BaseURL  string `json:"baseUrl,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
}

// AListConfig configures an AList/OpenList server. Authentication is either
// a static long-lived token or a username/password login exchange.
type AListConfig struct {
	BaseURL  string `json:"baseUrl"`
	RootPath string `json:"rootPath"`
	Token    string `json:"token,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	OTPCode  string `json:"otpCode,omitempty"`
	CDNURL   string `json:"cdnUrl,omitempty"`

	// Endpoint overrides; zero values use the server defaults.
	LoginEndpoint    string `json:"loginEndpoint,omitempty"`
	UploadEndpoint   string `json:"uploadEndpoint,omitempty"`
	DownloadEndpoint string `json:"downloadEndpoint,omitempty"`
	ListEndpoint     string `json:"listEndpoint,omitempty"`
	DeleteEndpoint   string `json:"deleteEndpoint,omitempty"`
	MetaEndpoint     string `json:"metaEndpoint,omitempty"`
	PathField        string `json:"pathField,omitempty"`
}

// BaiduConfig configures Baidu Netdisk access via an OAuth refresh token.
type BaiduConfig struct {
	ClientID     string `json:"clientId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
	RefreshToken string `json:"refreshToken"`
	RootPath     string `json:"rootPath,omitempty"`
	CDNURL       string `json:"cdnUrl,omitempty"`

	// Endpoint overrides for tests; zero values use the public API.
	TokenEndpoint      string `json:"tokenEndpoint,omitempty"`
	FileEndpoint       string `json:"fileEndpoint,omitempty"`
	MultimediaEndpoint string `json:"multimediaEndpoint,omitempty"`
	UploadEndpoint     string `json:"uploadEndpoint,omitempty"`
}

// Validate checks the union exhaustively: the tag must name a known kind and
// exactly the matching variant must be present and complete.
func (c *Config) Validate() error {
	switch c.Provider {
	case KindS3:
		if c.S3 == nil {
			return fmt.Errorf("storage config %q missing s3 section", c.Provider)
		}
		if c.S3.Bucket == "" {
			return fmt.Errorf("s3 config missing bucket")
		}
		if c.S3.AccessKeyID == "" || c.S3.SecretAccessKey == "" {
			return fmt.Errorf("s3 config missing accessKeyId or secretAccessKey")
		}
		return nil
	case KindLocal:
		if c.Local == nil {
			return fmt.Errorf("storage config %q missing local section", c.Provider)
		}
		if c.Local.BasePath == "" {
			return fmt.Errorf("local config missing basePath")
		}
		return nil
	case KindAList, KindOpenList:
		if c.AList == nil {
			return fmt.Errorf("storage config %q missing alist section", c.Provider)
		}
		if c.AList.BaseURL == "" {
			return fmt.Errorf("alist config missing baseUrl")
		}
		if c.AList.RootPath == "" {
			return fmt.Errorf("alist config missing rootPath")
		}
		if c.AList.Token == "" && (c.AList.Username == "" || c.AList.Password == "") {
			return fmt.Errorf("alist config requires token or username/password credentials")
		}
		return nil
	case KindBaidu:
		if c.Baidu == nil {
			return fmt.Errorf("storage config %q missing baidu section", c.Provider)
		}
		if c.Baidu.RefreshToken == "" {
			return fmt.Errorf("baidu config missing refreshToken")
		}
		return nil
	default:
		return fmt.Errorf("unknown storage provider %q", c.Provider)
	}
}
