package pagestyle

// CaptureScript runs inside the rendered page and returns, as a JSON
// string, the page URL, title, serialised markup and the element tree of
// <body> with computed typography and bounding boxes. ParsePage decodes it.
const CaptureScript = `() => {
	const SKIP = new Set(['SCRIPT', 'STYLE', 'NOSCRIPT', 'TEMPLATE', 'IFRAME']);

	function capture(el) {
		const cs = window.getComputedStyle(el);
		const rect = el.getBoundingClientRect();
		let own = '';
		const children = [];
		for (const child of el.childNodes) {
			if (child.nodeType === Node.TEXT_NODE) {
				own += child.textContent;
			} else if (child.nodeType === Node.ELEMENT_NODE && !SKIP.has(child.tagName)) {
				children.push(capture(child));
			}
		}
		return {
			tag: el.tagName.toLowerCase(),
			text: el.textContent || '',
			own: own,
			style: {
				fontFamily: cs.fontFamily,
				fontSize: cs.fontSize,
				fontWeight: cs.fontWeight,
				color: cs.color,
				lineHeight: cs.lineHeight,
				letterSpacing: cs.letterSpacing,
				display: cs.display,
				visibility: cs.visibility,
				opacity: cs.opacity
			},
			rect: { width: rect.width, height: rect.height },
			children: children
		};
	}

	const root = document.body || document.documentElement;
	return JSON.stringify({
		url: location.href,
		title: document.title,
		html: document.documentElement.outerHTML,
		root: capture(root)
	});
}`
