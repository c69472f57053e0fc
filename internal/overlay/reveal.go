package overlay

import (
	"sync"

	"github.com/dgallion1/docgloss/internal/document"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ViewID is the id of the shared definition view element.
const ViewID = "docgloss-definition"

const revealStyle = `.docgloss-term{border-bottom:1px dotted currentColor;cursor:help}
#docgloss-definition{position:absolute;z-index:2147483647;max-width:24rem;padding:.5rem .75rem;background:#fff;color:#222;border:1px solid #ccc;border-radius:4px;box-shadow:0 2px 8px rgba(0,0,0,.15);font:14px/1.4 sans-serif}`

const revealScript = `(function(){
var view=document.getElementById("docgloss-definition");
if(!view)return;
function hide(){view.hidden=true;view.textContent="";}
function show(m){
var r=m.getBoundingClientRect();
view.textContent=m.getAttribute("data-definition");
view.style.left=(window.scrollX+r.left)+"px";
view.style.top=(window.scrollY+r.bottom+4)+"px";
view.hidden=false;
}
document.addEventListener("click",function(e){
var m=e.target.closest&&e.target.closest(".docgloss-term");
if(m){show(m);}else if(!view.contains(e.target)){hide();}
});
document.addEventListener("keydown",function(e){
if(e.key==="Escape"){hide();return;}
if((e.key==="Enter"||e.key===" ")&&e.target.classList&&e.target.classList.contains("docgloss-term")){e.preventDefault();show(e.target);}
});
})();`

// AttachReveal decorates every marker for keyboard and pointer activation and
// injects the shared definition view once. It returns the number of markers.
func AttachReveal(doc *document.Document) int {
	markers := doc.Markers()
	for _, m := range markers {
		document.SetAttr(m, "tabindex", "0")
		document.SetAttr(m, "role", "button")
		document.SetAttr(m, "aria-describedby", ViewID)
	}

	existing := document.Find(doc.Root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && document.Attr(n, "id") == ViewID
	})
	if existing != nil {
		return len(markers)
	}

	host := document.Find(doc.Root, func(n *html.Node) bool { return document.IsElement(n, atom.Body) })
	if host == nil {
		host = doc.Root
	}
	host.AppendChild(element(atom.Div, "", html.Attribute{Key: "id", Val: ViewID},
		html.Attribute{Key: "role", Val: "tooltip"}, html.Attribute{Key: "hidden"}))
	host.AppendChild(element(atom.Style, revealStyle))
	host.AppendChild(element(atom.Script, revealScript))
	return len(markers)
}

func element(a atom.Atom, text string, attrs ...html.Attribute) *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     a.String(),
		DataAtom: a,
		Attr:     append([]html.Attribute{{Key: document.UIAttr}}, attrs...),
	}
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
	return n
}

// View is the definition currently shown.
type View struct {
	Term       string
	Definition string
	Anchor     *html.Node
}

// Viewer tracks the definition view for hosts without a browser. At most one
// definition is visible at a time.
type Viewer struct {
	mu      sync.Mutex
	visible *View
}

// Show displays the definition carried by marker, replacing any visible one.
func (v *Viewer) Show(marker *html.Node) (View, bool) {
	if !document.IsMarker(marker) {
		return View{}, false
	}
	view := View{
		Term:       document.Attr(marker, "data-term"),
		Definition: document.Attr(marker, "data-definition"),
		Anchor:     marker,
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.visible = &view
	return view, true
}

// Hide dismisses the visible definition, if any.
func (v *Viewer) Hide() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.visible = nil
}

func (v *Viewer) Visible() (View, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.visible == nil {
		return View{}, false
	}
	return *v.visible, true
}
