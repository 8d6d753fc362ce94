package js

// DOCUMENT_HTML returns the rendered document, after client side scripts have
// had a chance to modify it.
var DOCUMENT_HTML string = `
() => {
    var doctype = document.doctype ? new XMLSerializer().serializeToString(document.doctype) : "";
    return doctype + document.documentElement.outerHTML;
}
`

// NAVIGATION_STATUS returns the HTTP status of the main document, or 0 when
// the browser does not expose it.
var NAVIGATION_STATUS string = `
() => {
    var entries = performance.getEntriesByType("navigation");
    if (entries.length === 0 || !entries[0].responseStatus) return 0;
    return entries[0].responseStatus;
}
`
