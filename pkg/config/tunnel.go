package config

import (
	"encoding/base64"
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// Tunnel describes a Shadowsocks hop placed in front of a device. It is an
// alternative to writing the transport URL by hand.
type Tunnel struct {
	Server     string `mapstructure:"server" validate:"required"`
	ServerPort int    `mapstructure:"server_port" validate:"min=1,max=65535"`
	Method     string `mapstructure:"method" validate:"required"`
	Password   string `mapstructure:"password"`
	Prefix     string `mapstructure:"prefix"`
}

// TransportURL converts the tunnel into an ss:// transport URL.
func (t *Tunnel) TransportURL() string {
	userInfo := base64.URLEncoding.EncodeToString([]byte(t.Method + ":" + t.Password))

	u := &url.URL{
		Scheme: "ss",
		User:   url.User(userInfo),
		Host:   net.JoinHostPort(t.Server, strconv.Itoa(t.ServerPort)),
	}

	if t.Prefix != "" {
		q := url.Values{}
		q.Add("prefix", t.Prefix)
		u.RawQuery = q.Encode()
	}

	return u.String()
}

func (d *Device) resolveTransport() error {
	if d.Tunnel == nil {
		return nil
	}
	if d.Transport != "" {
		return &ConfigurationError{
			Key: "ammeters." + d.Name + ".tunnel",
			Err: fmt.Errorf("tunnel and transport are mutually exclusive"),
		}
	}
	d.Transport = d.Tunnel.TransportURL()
	return nil
}
