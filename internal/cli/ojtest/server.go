// Package ojtest runs in-process fake CAS and OJ servers for tests.
package ojtest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gin-gonic/gin"
)

const (
	SessionCookie = "JCoderID"
	CSRFCookie    = "csrftoken"
	SessionValue  = "session-123"
	CSRFValue     = "csrf-abcdef123456"
	Execution     = "e1s1-token"
)

// Options controls how the fake servers behave.
type Options struct {
	Username string
	Password string
	// BadCredentialsStatus is the status for a wrong password: 200 with an
	// error banner (default) or 401.
	BadCredentialsStatus int
	// ErrorBanner replaces the markup shown above the form for a wrong password.
	ErrorBanner string
	// RedirectLoop makes the CAS ticket endpoint redirect to itself forever.
	RedirectLoop bool
	// OmitSessionCookie makes the OJ login callback skip the session cookie.
	OmitSessionCookie bool
	// OmitCSRF makes the CSRF mint endpoint skip the token cookie.
	OmitCSRF bool
	// OmitExecution drops the hidden token from the login form.
	OmitExecution bool
	// AuthorizeStatus overrides the 302 of the authorize endpoint.
	AuthorizeStatus int
}

// Servers is a running CAS + OJ pair.
type Servers struct {
	CAS *httptest.Server
	OJ  *httptest.Server

	opts Options

	mu          sync.Mutex
	Data        Data
	calls       map[string]int
	uploads     []Upload
	gradingStep int
}

// Upload is one received solution.
type Upload struct {
	CourseID   string
	HomeworkID string
	ProblemID  string
	Language   string
	FileName   string
	Content    string
}

// New starts both servers. Call Close when done.
func New(opts Options) *Servers {
	gin.SetMode(gin.TestMode)
	if opts.Username == "" {
		opts.Username = "student"
	}
	if opts.Password == "" {
		opts.Password = "secret"
	}
	if opts.BadCredentialsStatus == 0 {
		opts.BadCredentialsStatus = http.StatusOK
	}
	s := &Servers{opts: opts, calls: map[string]int{}, Data: DefaultData()}
	s.OJ = httptest.NewServer(s.ojRouter())
	s.CAS = httptest.NewServer(s.casRouter())
	return s
}

func (s *Servers) Close() {
	s.CAS.Close()
	s.OJ.Close()
}

// AuthorizeURL is the CAS entry point pointing back at the fake OJ.
func (s *Servers) AuthorizeURL() string {
	return s.CAS.URL + "/cas/oauth2.0/authorize?response_type=code&client_id=test&redirect_uri=" + s.OJ.URL + "/api/login/cas/"
}

// Calls returns how often a path was hit.
func (s *Servers) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// Uploads returns the received solutions.
func (s *Servers) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

// SetData replaces the served fixtures.
func (s *Servers) SetData(d Data) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Data = d
	s.gradingStep = 0
}

func (s *Servers) count(c *gin.Context) {
	s.mu.Lock()
	s.calls[c.Request.URL.Path]++
	s.mu.Unlock()
	c.Next()
}

func (s *Servers) casRouter() *gin.Engine {
	r := gin.New()
	r.Use(s.count)

	r.GET("/cas/oauth2.0/authorize", func(c *gin.Context) {
		if s.opts.AuthorizeStatus != 0 {
			c.Status(s.opts.AuthorizeStatus)
			return
		}
		c.Redirect(http.StatusFound, "/cas/login?service=oauth")
	})
	r.GET("/cas/login", func(c *gin.Context) {
		token := fmt.Sprintf(`<input type="hidden" name="execution" value="%s"/>`, Execution)
		if s.opts.OmitExecution {
			token = ""
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(loginPage(token, "")))
	})
	r.POST("/cas/login", func(c *gin.Context) {
		if c.PostForm("execution") != Execution || c.PostForm("_eventId") != "submit" {
			c.Status(http.StatusBadRequest)
			return
		}
		if c.PostForm("username") != s.opts.Username || c.PostForm("password") != s.opts.Password {
			if s.opts.BadCredentialsStatus == http.StatusUnauthorized {
				c.Status(http.StatusUnauthorized)
				return
			}
			token := fmt.Sprintf(`<input type="hidden" name="execution" value="%s"/>`, Execution)
			banner := `<div id="loginErrorsPanel" class="alert alert-danger">认证信息无效</div>`
			if s.opts.ErrorBanner != "" {
				banner = s.opts.ErrorBanner
			}
			c.Data(s.opts.BadCredentialsStatus, "text/html; charset=utf-8", []byte(loginPage(token, banner)))
			return
		}
		c.SetCookie("TGC", "tgt-1", 0, "/cas", "", false, true)
		c.Redirect(http.StatusFound, "/cas/oauth2.0/callbackAuthorize?ticket=ST-1")
	})
	r.GET("/cas/oauth2.0/callbackAuthorize", func(c *gin.Context) {
		if s.opts.RedirectLoop {
			c.Redirect(http.StatusFound, "/cas/oauth2.0/callbackAuthorize?ticket=ST-1")
			return
		}
		c.Redirect(http.StatusFound, s.OJ.URL+"/api/login/cas/?code=OC-1")
	})
	return r
}

func loginPage(token, banner string) string {
	return `<!DOCTYPE html><html><body>` + banner +
		`<form id="fm1" method="post"><input id="username" name="username"/>` +
		`<input type="password" name="password"/>` + token +
		`<input type="hidden" name="_eventId" value="submit"/></form></body></html>`
}

func (s *Servers) ojRouter() *gin.Engine {
	r := gin.New()
	r.Use(s.count)

	r.GET("/", func(c *gin.Context) {
		c.SetCookie("lang", "en", 0, "/", "", false, false)
		c.Data(http.StatusOK, "text/html", []byte("<html>oj</html>"))
	})
	r.GET("/api/login/cas/", func(c *gin.Context) {
		if c.Query("code") == "" {
			c.Status(http.StatusBadRequest)
			return
		}
		if !s.opts.OmitSessionCookie {
			c.SetCookie(SessionCookie, SessionValue, 0, "/", "", false, true)
		}
		c.Redirect(http.StatusFound, "/")
	})
	r.GET("/api/cors/", func(c *gin.Context) {
		if !s.opts.OmitCSRF {
			c.SetCookie(CSRFCookie, CSRFValue, 0, "/", "", false, false)
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api", s.requireSession)
	api.POST("/union/my_courses_list/", s.courses)
	api.POST("/course/homeworks/list/", s.homeworks)
	api.POST("/homework/general/", s.homeworkGeneral)
	api.POST("/homework/problems/list/", s.problems)
	api.POST("/homework/problems/info/", s.problemInfo)
	api.POST("/homework/submit/recent_records/", s.records)
	api.POST("/homework/submit/", s.submit)
	api.POST("/homework/submit/result/", s.result)
	return r
}

func (s *Servers) requireSession(c *gin.Context) {
	sess, err := c.Cookie(SessionCookie)
	if err != nil || sess != SessionValue {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	token, err := c.Cookie(CSRFCookie)
	if err != nil || token == "" || c.GetHeader("X-CSRFToken") != token {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}
	c.Next()
}

func (s *Servers) snapshot() Data {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Data
}

func (s *Servers) courses(c *gin.Context) {
	d := s.snapshot()
	if d.CoursesRaw != "" {
		c.Data(http.StatusOK, "application/json", []byte(d.CoursesRaw))
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": d.Courses})
}

func (s *Servers) homeworks(c *gin.Context) {
	d := s.snapshot()
	c.JSON(http.StatusOK, gin.H{"list": d.Homeworks[c.PostForm("courseId")]})
}

func (s *Servers) homeworkGeneral(c *gin.Context) {
	d := s.snapshot()
	id := c.PostForm("homeworkId")
	if d.FailingHomework[id] {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, d.HomeworkDetails[id])
}

func (s *Servers) problems(c *gin.Context) {
	d := s.snapshot()
	c.JSON(http.StatusOK, gin.H{"list": d.Problems[c.PostForm("homeworkId")]})
}

func (s *Servers) problemInfo(c *gin.Context) {
	d := s.snapshot()
	info, ok := d.ProblemInfo[c.PostForm("problemId")]
	if !ok {
		c.Data(http.StatusOK, "text/html", []byte("<html>not found</html>"))
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Servers) records(c *gin.Context) {
	d := s.snapshot()
	c.JSON(http.StatusOK, gin.H{"list": d.Records[c.PostForm("problemId")]})
}

func (s *Servers) submit(c *gin.Context) {
	fh, err := c.FormFile("files")
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"message": "no file"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	defer func() { _ = f.Close() }()
	content, err := io.ReadAll(f)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	s.uploads = append(s.uploads, Upload{
		CourseID:   c.PostForm("courseId"),
		HomeworkID: c.PostForm("homeworkId"),
		ProblemID:  c.PostForm("problemId"),
		Language:   c.PostForm("language"),
		FileName:   fh.Filename,
		Content:    string(content),
	})
	recordID := s.Data.UploadRecordID
	s.mu.Unlock()

	if recordID == "" {
		c.JSON(http.StatusOK, gin.H{"message": "judge unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recordId": recordID})
}

func (s *Servers) result(c *gin.Context) {
	s.mu.Lock()
	script := s.Data.Grading
	step := s.gradingStep
	s.gradingStep++
	s.mu.Unlock()

	if len(script) == 0 {
		c.Status(http.StatusNotFound)
		return
	}
	if step >= len(script) {
		step = len(script) - 1
	}
	c.Data(http.StatusOK, "application/json", []byte(script[step]))
}
