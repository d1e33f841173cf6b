package browser

// FingerprintScript masks the automation markers the venue's frontend
// checks for and seeds the wallet-connect storage so the page skips the
// wallet onboarding flow. Installed on every new document.
const FingerprintScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => false });
Object.defineProperty(navigator, 'platform', { get: () => 'Win32' });
Object.defineProperty(navigator, 'appVersion', { get: () => '5.0 (Windows NT 10.0; Win64; x64)' });
window.chrome = { runtime: {} };
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
sessionStorage.setItem('metamaskConfig', JSON.stringify({
    hideProvidersArray: false,
    showMetamaskExplainer: false,
    dontOverrideWindowEthereum: false
}));
const dbName = "WALLET_CONNECT_V2_INDEXED_DB";
const storeName = "keyvaluepairs";
const key = "wc@2:core:0.3:keychain";
const value = JSON.stringify({});
const openRequest = indexedDB.open(dbName);
openRequest.onupgradeneeded = (e) => {
    const db = e.target.result;
    if (!db.objectStoreNames.contains(storeName)) {
        db.createObjectStore(storeName);
    }
};
openRequest.onerror = (e) => { console.error(e.target.error); };
openRequest.onsuccess = (e) => {
    const db = e.target.result;
    const tx = db.transaction(storeName, "readwrite");
    const store = tx.objectStore(storeName);
    store.put(value, key);
    tx.oncomplete = () => { db.close(); };
};
`
