package handler

import "html/template"

const loginTemplateName = "login"

type loginPageData struct {
	Providers []string
	Error     bool
	Logout    bool
}

var loginTemplate = template.Must(template.New(loginTemplateName).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Please sign in</title>
</head>
<body>
<h2>Login with OAuth 2.0</h2>
{{if .Error}}<p class="error">Login failed, please try again.</p>{{end}}
{{if .Logout}}<p class="info">You have been signed out.</p>{{end}}
<ul>
{{range .Providers}}<li><a href="/oauth2/authorization/{{.}}">{{.}}</a></li>
{{end}}</ul>
</body>
</html>
`))
