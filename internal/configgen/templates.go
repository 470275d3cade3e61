package configgen

import "text/template"

// Config templates are rendered with renderData and fully overwrite
// their target file on every start, so drift cannot accumulate across
// restarts. Paths are always absolute.

var nginxTemplate = template.Must(template.New("nginx.conf").Parse(`worker_processes auto;
error_log {{.LogDir}}/nginx-error.log;
pid {{.RunDir}}/nginx.pid;

events {
    worker_connections 1024;
}

http {
    access_log {{.LogDir}}/nginx-access.log;
    client_body_temp_path {{.DataDir}}/body;
    proxy_temp_path {{.DataDir}}/proxy;
    fastcgi_temp_path {{.DataDir}}/fastcgi;
    uwsgi_temp_path {{.DataDir}}/uwsgi;
    scgi_temp_path {{.DataDir}}/scgi;

    server {
        listen {{.Port}} default_server;
        server_name _;
        root {{.DataDir}}/html;
    }

    include {{.VhostDir}}/*.conf;
}
`))

var nginxVhostTemplate = template.Must(template.New("nginx-vhost").Parse(`server {
    listen {{.Port}};
    server_name {{.Domain}};
    root {{.DocRoot}};
}
{{if .TLS}}
server {
    listen {{.TLSPort}} ssl;
    server_name {{.Domain}};
    root {{.DocRoot}};
    ssl_certificate {{.CertFile}};
    ssl_certificate_key {{.KeyFile}};
}
{{end}}`))

var apacheTemplate = template.Must(template.New("httpd.conf").Parse(`ServerRoot "{{.DataDir}}"
Listen {{.Port}}
PidFile "{{.RunDir}}/httpd.pid"
ErrorLog "{{.LogDir}}/httpd-error.log"
CustomLog "{{.LogDir}}/httpd-access.log" common

ServerName localhost:{{.Port}}
DocumentRoot "{{.DataDir}}/htdocs"

IncludeOptional "{{.VhostDir}}/*.conf"
`))

var apacheVhostTemplate = template.Must(template.New("apache-vhost").Parse(`<VirtualHost *:{{.Port}}>
    ServerName {{.Domain}}
    DocumentRoot "{{.DocRoot}}"
</VirtualHost>
{{if .TLS}}<VirtualHost *:{{.TLSPort}}>
    ServerName {{.Domain}}
    DocumentRoot "{{.DocRoot}}"
    SSLEngine on
    SSLCertificateFile "{{.CertFile}}"
    SSLCertificateKeyFile "{{.KeyFile}}"
</VirtualHost>
{{end}}`))

var mysqlTemplate = template.Must(template.New("my.cnf").Parse(`[mysqld]
port={{.Port}}
datadir={{.DataDir}}
socket={{.PipePath}}
log-error={{.LogDir}}/{{.Label}}-error.log
pid-file={{.RunDir}}/{{.Label}}.pid
init-file={{.InitFile}}
{{- if .Maintenance}}
skip-grant-tables
skip-networking
{{- end}}
`))

var redisTemplate = template.Must(template.New("redis.conf").Parse(`port {{.Port}}
bind 127.0.0.1
dir {{.DataDir}}
logfile {{.LogDir}}/redis.log
pidfile {{.RunDir}}/redis.pid
daemonize no
`))

// renderData is the single data shape shared by all templates. Fields
// irrelevant to a template are simply unused.
type renderData struct {
	Label    string
	Port     int
	TLSPort  int
	DataDir  string
	LogDir   string
	RunDir   string
	VhostDir string
	InitFile string
	PipePath string

	Maintenance bool
}

type vhostData struct {
	Domain   string
	Port     int
	TLSPort  int
	DocRoot  string
	TLS      bool
	CertFile string
	KeyFile  string
}
