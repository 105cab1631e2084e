package control

import (
	"context"

	"github.com/coreman2200/panelhttpd/internal/httpd"
	"github.com/coreman2200/panelhttpd/internal/textsan"
)

// CGI returns the GET table in lookup order.
func (c *Controller) CGI() []httpd.CGI {
	return []httpd.CGI{
		{Path: "/", Handler: c.index},
		{Path: "/index.shtml", Handler: c.index},
		{Path: "/rgb.cgi", Handler: c.rgbCGI},
		{Path: "/oled.cgi", Handler: c.oledCGI},
		{Path: "/matrix.cgi", Handler: c.matrixCGI},
	}
}

func (c *Controller) index(context.Context, int, []httpd.Param) string {
	return Redirect
}

// rgbCGI sets the indicator from r, g and b. A missing channel is 0.
func (c *Controller) rgbCGI(_ context.Context, _ int, params []httpd.Param) string {
	var lv [3]uint8
	for _, p := range params {
		switch p.Name {
		case "r":
			lv[0] = ParseLevel(p.Value)
		case "g":
			lv[1] = ParseLevel(p.Value)
		case "b":
			lv[2] = ParseLevel(p.Value)
		}
	}
	c.setRGB(lv[0], lv[1], lv[2])
	return Redirect
}

// oledCGI pushes the first non-empty text parameter to the display.
func (c *Controller) oledCGI(ctx context.Context, _ int, params []httpd.Param) string {
	for _, p := range params {
		if p.Name == "text" && p.Value != "" {
			c.pushText(ctx, []byte(p.Value))
			break
		}
	}
	return Redirect
}

// matrixCGI applies the first non-empty data parameter to the matrix.
func (c *Controller) matrixCGI(_ context.Context, _ int, params []httpd.Param) string {
	for _, p := range params {
		if p.Name == "data" && p.Value != "" {
			c.setMatrix(string(textsan.Decode([]byte(p.Value))))
			break
		}
	}
	return Redirect
}
